// Package insight produces AI commentary for a scored audit.
package insight

import (
	"context"
	"errors"

	"github.com/JakeFAU/seo-auditor/internal/scoring"
)

// Generator turns a scored audit into insights. Implementations may fail;
// callers fall back to Mock.
type Generator interface {
	Generate(ctx context.Context, audit scoring.ScoredAudit) (scoring.AIInsights, error)
	Name() string
}

// ErrInvalidResponse marks generator output that cannot be used.
var ErrInvalidResponse = errors.New("invalid insight response")
