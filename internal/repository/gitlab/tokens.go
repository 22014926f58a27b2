package gitlab

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

type permanent struct{ error }

func (permanent) Permanent() bool { return true }

// ErrNoUsableToken means none of the probed access tokens was accepted.
var ErrNoUsableToken error = permanent{errors.New("gitlab: no usable access token")}

// Tokens picks a working access token out of a candidate list.
type Tokens struct {
	log      *zap.Logger
	client   *Client
	tokens   []string
	attempts int
	wait     time.Duration
	pick     func(n int) int
}

func NewTokens(client *Client, tokens []string, attempts int, log *zap.Logger) *Tokens {
	if attempts <= 0 {
		attempts = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	clean := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			clean = append(clean, t)
		}
	}
	return &Tokens{
		log:      log.With(zap.String("component", "tokens")),
		client:   client,
		tokens:   clean,
		attempts: attempts,
		wait:     time.Second,
		pick:     rand.Intn,
	}
}

// Select tries random candidates until one answers GET user with 200 and
// returns a client bound to it. ErrNoUsableToken is returned only when GitLab
// answered and refused; if no attempt got an answer the last transport error
// is returned instead.
func (t *Tokens) Select(ctx context.Context) (*Client, error) {
	if len(t.tokens) == 0 {
		return nil, ErrNoUsableToken
	}
	var (
		answered bool
		lastErr  error
	)
	for i := 0; i < t.attempts; i++ {
		token := t.tokens[t.pick(len(t.tokens))]
		c := t.client.WithToken(token)
		log := t.log.With(zap.String("token", Fingerprint(token)), zap.Int("attempt", i+1))

		code, err := c.probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("token check failed", zap.Error(err))
			lastErr = err
			if err := sleep(ctx, t.wait); err != nil {
				return nil, err
			}
			continue
		}
		answered = true
		switch {
		case code == http.StatusOK:
			log.Debug("token selected")
			return c, nil
		case code == http.StatusTooManyRequests:
			log.Warn("token rate limited")
			if err := sleep(ctx, t.wait); err != nil {
				return nil, err
			}
		default:
			log.Warn("token rejected", zap.Int("status", code))
		}
	}
	if !answered {
		return nil, fmt.Errorf("gitlab: check tokens: %w", lastErr)
	}
	return nil, ErrNoUsableToken
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
