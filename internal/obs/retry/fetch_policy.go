package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Permanent marks errors that retrying cannot fix.
type Permanent interface {
	Permanent() bool
}

func IsPermanent(err error) bool {
	var p Permanent
	return errors.As(err, &p) && p.Permanent()
}

// DefaultFetchPolicy retries a whole fetch-and-scan operation: three attempts,
// waiting 1s then 2s.
func DefaultFetchPolicy(name string, log *zap.Logger) Policy {
	return FetchPolicy(name, 3, time.Second, log)
}

func FetchPolicy(name string, attempts int, base time.Duration, log *zap.Logger) Policy {
	return Policy{
		Name:     name,
		Attempts: attempts,
		Backoff:  ExpoJitter{Base: base, Max: 30 * time.Second},
		Retryable: func(err error) bool {
			return err != nil && !IsPermanent(err)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("fetch attempt failed", zap.String("op", name), zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("fetch retries exhausted", zap.String("op", name), zap.Error(err))
			}
		},
	}
}
