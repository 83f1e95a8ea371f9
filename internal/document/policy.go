package document

import (
	"slices"
	"strings"
	"time"

	"github.com/abduss/benefits/internal/config"
	"github.com/sethvargo/go-retry"
)

const mib = 1024 * 1024

// Policy bounds uploads and schedules retries.
type Policy struct {
	MaxFileSize      int64
	MaxFiles         int
	AllowedTypes     []string
	MaxAttempts      int
	BaseTimeout      time.Duration
	PerMBIncrement   time.Duration
	AttemptIncrement time.Duration
	AttemptCap       time.Duration
	BackoffBase      time.Duration
}

// PolicyFromConfig maps upload configuration onto a Policy.
func PolicyFromConfig(cfg config.UploadConfig) Policy {
	return Policy{
		MaxFileSize:      cfg.MaxFileSize,
		MaxFiles:         cfg.MaxFiles,
		AllowedTypes:     cfg.AllowedTypes,
		MaxAttempts:      cfg.MaxAttempts,
		BaseTimeout:      cfg.BaseTimeout,
		PerMBIncrement:   cfg.PerMBIncrement,
		AttemptIncrement: cfg.AttemptIncrement,
		AttemptCap:       cfg.AttemptCap,
		BackoffBase:      cfg.BackoffBase,
	}
}

// Timeout is the budget for one attempt: a base, one increment per whole MiB,
// and a per-attempt bonus capped at AttemptCap. attempt is 1-based.
func (p Policy) Timeout(size int64, attempt int) time.Duration {
	bonus := time.Duration(attempt) * p.AttemptIncrement
	if bonus > p.AttemptCap {
		bonus = p.AttemptCap
	}
	return p.BaseTimeout + time.Duration(size/mib)*p.PerMBIncrement + bonus
}

// Backoff is the pause after the given failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BackoffBase * time.Duration(attempt)
}

// Allowed reports whether contentType may be uploaded.
func (p Policy) Allowed(contentType string) bool {
	return slices.Contains(p.AllowedTypes, normalizeType(contentType))
}

// retryBackoff grows linearly and stops once MaxAttempts attempts have run.
func (p Policy) retryBackoff() retry.Backoff {
	failed := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		failed++
		if failed >= p.MaxAttempts {
			return 0, true
		}
		return p.Backoff(failed), false
	})
}

func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
