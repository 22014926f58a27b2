package gitlab

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/NordCoder/Pipewatch/internal/obs"
	"github.com/NordCoder/Pipewatch/internal/workpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://gitlab.com/api/v4/"

type Config struct {
	BaseURL            string        `mapstructure:"base_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RateLimit          float64       `mapstructure:"rate_limit"`
	RateBurst          int           `mapstructure:"rate_burst"`
	Workers            int           `mapstructure:"workers"`
	TokenAttempts      int           `mapstructure:"token_attempts"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

var (
	ErrUnauthorized = errors.New("gitlab: unauthorized")
	ErrRateLimited  = errors.New("gitlab: rate limited")
)

type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gitlab: GET %s: unexpected status %d", e.Path, e.Code)
}

// Client talks to the GitLab REST v4 API with one access token. Every call is
// rate limited and runs on the shared worker pool.
type Client struct {
	log     *zap.Logger
	base    *url.URL
	hc      *http.Client
	pool    *workpool.Pool
	limiter *rate.Limiter
	timeout time.Duration
	token   string
}

var _ ci.Source = (*Client)(nil)

func NewHTTPClient(cfg Config) *http.Client {
	return &http.Client{Transport: obs.HTTPTransport(newTransport(cfg))}
}

func newTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}
}

func New(cfg Config, hc *http.Client, pool *workpool.Pool, log *zap.Logger) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if hc == nil {
		hc = NewHTTPClient(cfg)
	}
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		log:     log.With(zap.String("component", "gitlab")),
		base:    base,
		hc:      hc,
		pool:    pool,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.RequestTimeout,
	}, nil
}

// WithToken returns a copy of c that authenticates with token. The copy shares
// the transport, the pool and the limiter.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) ProjectPipelines(ctx context.Context, projectID int64, page int) ([]ci.PipelineSummary, error) {
	return list[ci.PipelineSummary](ctx, c, fmt.Sprintf("projects/%d/pipelines", projectID), pageQuery(page, true))
}

func (c *Client) Pipeline(ctx context.Context, projectID, pipelineID int64) (*ci.Pipeline, error) {
	var p ci.Pipeline
	path := fmt.Sprintf("projects/%d/pipelines/%d", projectID, pipelineID)
	if err := c.get(ctx, path, nil, func(body []byte) error {
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("%s: %w: %v", path, ci.ErrMalformed, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) RunnerJobs(ctx context.Context, runnerID int64, page int) ([]ci.Job, error) {
	return list[ci.Job](ctx, c, fmt.Sprintf("runners/%d/jobs", runnerID), pageQuery(page, true))
}

func (c *Client) GroupRunners(ctx context.Context, groupID int64, page int) ([]ci.Runner, error) {
	return list[ci.Runner](ctx, c, fmt.Sprintf("groups/%d/runners", groupID), pageQuery(page, false))
}

func (c *Client) GroupProjects(ctx context.Context, groupID int64, page int) ([]ci.Project, error) {
	return list[ci.Project](ctx, c, fmt.Sprintf("groups/%d/projects", groupID), pageQuery(page, false))
}

func (c *Client) Subgroups(ctx context.Context, groupID int64, page int) ([]ci.Group, error) {
	return list[ci.Group](ctx, c, fmt.Sprintf("groups/%d/subgroups", groupID), pageQuery(page, false))
}

// probe reports the status GET user answers with. Transport failures are
// returned as errors, HTTP statuses never are.
func (c *Client) probe(ctx context.Context) (int, error) {
	var code int
	err := c.do(ctx, "user", nil, func(resp *http.Response) error {
		code = resp.StatusCode
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
	return code, err
}

func pageQuery(page int, byID bool) url.Values {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(ci.PageSize))
	q.Set("page", strconv.Itoa(page))
	if byID {
		q.Set("order_by", "id")
	}
	return q
}

// list decodes one page element by element; elements that do not decode are
// logged and dropped.
func list[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	var out []T
	err := c.get(ctx, path, q, func(body []byte) error {
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return fmt.Errorf("%s: decode page: %w", path, err)
		}
		out = make([]T, 0, len(raw))
		for i, el := range raw {
			var v T
			if err := json.Unmarshal(el, &v); err != nil {
				obs.WithTrace(ctx, c.log).Warn("skip malformed element",
					zap.String("path", path), zap.Int("index", i), zap.Error(err))
				continue
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, decode func(body []byte) error) error {
	return c.do(ctx, path, q, func(resp *http.Response) error {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read body: %w", path, err)
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%s: %w", path, ErrUnauthorized)
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", path, ErrRateLimited)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", path, ci.ErrNotFound)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return &StatusError{Code: resp.StatusCode, Path: path}
		}
		return decode(body)
	})
}

func (c *Client) do(ctx context.Context, path string, q url.Values, handle func(resp *http.Response) error) error {
	run := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		u := c.base.ResolveReference(&url.URL{Path: path})
		if q != nil {
			u.RawQuery = q.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("PRIVATE-TOKEN", c.token)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}
		defer resp.Body.Close()
		return handle(resp)
	}
	if c.pool == nil {
		return run(ctx)
	}
	return c.pool.Do(ctx, run)
}
