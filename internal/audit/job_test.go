package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobLifecycleCompleted(t *testing.T) {
	t.Parallel()

	submitted := time.Unix(100, 0)
	job := NewJob("job-1", "https://example.com", submitted)
	require.Equal(t, JobStatusPending, job.Status)

	require.NoError(t, job.Start(submitted.Add(time.Second)))
	require.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.StartedAt)

	data := PageData{Title: "Example", H1s: []string{"Example"}}
	require.NoError(t, job.Complete(submitted.Add(2*time.Second), data))
	require.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Nil(t, job.Error)
	require.False(t, job.CompletedAt.Before(*job.StartedAt))
	require.False(t, job.StartedAt.Before(job.SubmittedAt))

	data.H1s[0] = "mutated"
	require.Equal(t, "Example", job.Result.H1s[0])
}

func TestJobLifecycleFailed(t *testing.T) {
	t.Parallel()

	job := NewJob("job-1", "https://example.com", time.Unix(100, 0))
	require.NoError(t, job.Start(time.Unix(101, 0)))
	require.NoError(t, job.Fail(time.Unix(102, 0), "boom"))
	require.Equal(t, JobStatusFailed, job.Status)
	require.Nil(t, job.Result)
	require.Equal(t, "boom", job.ErrorText())
}

func TestJobRejectsIllegalTransitions(t *testing.T) {
	t.Parallel()

	pending := NewJob("job-1", "https://example.com", time.Unix(100, 0))
	require.ErrorIs(t, pending.Complete(time.Unix(101, 0), PageData{}), ErrInvalidTransition)
	require.ErrorIs(t, pending.Fail(time.Unix(101, 0), "x"), ErrInvalidTransition)

	require.NoError(t, pending.Start(time.Unix(101, 0)))
	require.ErrorIs(t, pending.Start(time.Unix(102, 0)), ErrInvalidTransition)

	require.NoError(t, pending.Complete(time.Unix(103, 0), PageData{}))
	require.ErrorIs(t, pending.Fail(time.Unix(104, 0), "late"), ErrInvalidTransition)
	require.ErrorIs(t, pending.Start(time.Unix(104, 0)), ErrInvalidTransition)
	require.Equal(t, JobStatusCompleted, pending.Status)
}

func TestJobTimestampsStayMonotonic(t *testing.T) {
	t.Parallel()

	job := NewJob("job-1", "https://example.com", time.Unix(100, 0))
	require.NoError(t, job.Start(time.Unix(90, 0)))
	require.Equal(t, time.Unix(100, 0), *job.StartedAt)
	require.NoError(t, job.Fail(time.Unix(80, 0), ""))
	require.Equal(t, time.Unix(100, 0), *job.CompletedAt)
	require.Equal(t, "unknown error", job.ErrorText())
}

func TestJobCloneIsDeep(t *testing.T) {
	t.Parallel()

	job := NewJob("job-1", "https://example.com", time.Unix(100, 0))
	require.NoError(t, job.Start(time.Unix(101, 0)))
	require.NoError(t, job.Complete(time.Unix(102, 0), PageData{H1s: []string{"a"}}))

	cp := job.Clone()
	cp.Result.H1s[0] = "b"
	*cp.StartedAt = time.Unix(0, 0)
	require.Equal(t, "a", job.Result.H1s[0])
	require.Equal(t, time.Unix(101, 0), *job.StartedAt)
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"https", "https://example.com/path", nil},
		{"http with port", "http://example.com:8080", nil},
		{"empty", "   ", ErrMissingURL},
		{"no scheme", "example.com", ErrInvalidURL},
		{"ftp", "ftp://example.com", ErrInvalidURL},
		{"no host", "https://", ErrInvalidURL},
		{"garbage", "http://%zz", ErrInvalidURL},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ValidateURL(tc.input)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestFetchErrorUnwrapsAndMapsStatus(t *testing.T) {
	t.Parallel()

	err := error(&FetchError{URL: "https://example.com", StatusCode: 404})
	require.ErrorIs(t, err, ErrFetchFailed)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, 404, fe.HTTPStatus())
	require.Contains(t, err.Error(), "status 404")

	noResp := &FetchError{URL: "https://example.com"}
	require.Equal(t, 502, noResp.HTTPStatus())
	require.Contains(t, noResp.Error(), "no response")
}
