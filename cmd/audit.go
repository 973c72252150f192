package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/assembler"
	"github.com/JakeFAU/seo-auditor/internal/clock/system"
	"github.com/JakeFAU/seo-auditor/internal/config"
	"github.com/JakeFAU/seo-auditor/internal/id/uuid"
	"github.com/JakeFAU/seo-auditor/internal/insight"
	"github.com/JakeFAU/seo-auditor/internal/logging"
	"github.com/JakeFAU/seo-auditor/internal/metrics"
)

type auditOptions struct {
	baseURL    string
	noFallback bool
	insight    string
	compact    bool
}

func newAuditCmd() *cobra.Command {
	opts := &auditOptions{}
	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Audits one page through the job API and prints the scored result",
		Long: `Submits the URL to a running job engine, polls until the extraction
finishes, scores it and attaches AI insights. When the engine is unreachable
or the job fails, a deterministic simulated audit is printed instead unless
--no-fallback is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			return runAudit(cmd, cfg, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "job API base URL (overrides assembler.base_url)")
	cmd.Flags().BoolVar(&opts.noFallback, "no-fallback", false, "return the error instead of a simulated audit")
	cmd.Flags().StringVar(&opts.insight, "insight", "", "insight provider: none, mock or gemini (overrides insight.provider)")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "print compact JSON")
	return cmd
}

func runAudit(cmd *cobra.Command, cfg config.Config, opts *auditOptions, rawURL string) error {
	if opts.baseURL != "" {
		cfg.Assembler.BaseURL = opts.baseURL
	}
	if opts.noFallback {
		cfg.Assembler.DegradeToSimulated = false
	}
	if opts.insight != "" {
		cfg.Insight.Provider = opts.insight
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	ctx := cmd.Context()
	generator, err := newGenerator(ctx, cfg.Insight)
	if err != nil {
		return err
	}

	asm := assembler.New(
		assembler.NewHTTPClient(cfg.Assembler.BaseURL, cfg.Assembler.RequestTimeout),
		uuid.New(),
		system.New(),
		generator,
		assembler.Config{
			PollInterval:       cfg.Assembler.PollInterval,
			MaxAttempts:        cfg.Assembler.MaxAttempts,
			FallbackDelay:      cfg.Assembler.FallbackDelay,
			DegradeToSimulated: cfg.Assembler.DegradeToSimulated,
			InsightTimeout:     cfg.Insight.Timeout,
		},
		logger,
	)

	result, err := asm.RunAudit(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("audit %s: %w", rawURL, err)
	}
	logger.Debug("audit complete", zap.String("audit_id", result.ID), zap.Int("overall", result.Scores.Overall))

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !opts.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

func newGenerator(ctx context.Context, cfg config.InsightConfig) (insight.Generator, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case insight.GeminiName:
		gen, err := insight.NewGemini(ctx, insight.GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model})
		if err != nil {
			return nil, fmt.Errorf("insight generator init failed: %w", err)
		}
		return gen, nil
	case "", insight.MockName:
		return insight.Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown insight provider %q", cfg.Provider)
	}
}
