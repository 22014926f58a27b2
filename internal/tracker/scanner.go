package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/NordCoder/Pipewatch/internal/obs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Pager yields one resource's items newest first. An empty page means there
// is no older history.
type Pager interface {
	Page(ctx context.Context, page int) ([]ci.Item, error)
}

// Resolver is implemented by pagers whose listing carries only summaries.
// Items are resolved one at a time while the scan walks the page, so the
// boundary stop also bounds detail fetches.
type Resolver interface {
	Resolve(ctx context.Context, it ci.Item) (ci.Item, error)
}

type PagerFunc func(ctx context.Context, page int) ([]ci.Item, error)

func (f PagerFunc) Page(ctx context.Context, page int) ([]ci.Item, error) { return f(ctx, page) }

type Scanner struct {
	Log *zap.Logger
	// OverlapPages extra pages are read, in full, after the stop condition holds.
	OverlapPages int
	// MaxAge evicts Watchlist entries older than this; zero keeps them forever.
	MaxAge   time.Duration
	PageSize int
	Now      func() time.Time
}

type Outcome struct {
	Records    map[int64]ci.Record
	Watchlist  Watchlist
	Pages      int
	Reconciled int
	Carried    int
	Removed    int
	Skipped    int
	Evicted    []int64
}

func NewScanner(log *zap.Logger) *Scanner {
	return &Scanner{Log: log, PageSize: ci.PageSize, Now: time.Now}
}

// Scan reconciles w against the pages of src for window win. It returns the
// records to emit and the Watchlist to commit; nothing is returned when a page
// fetch fails, so an aborted scan leaves no partial result behind.
func (s *Scanner) Scan(ctx context.Context, w Watchlist, win Window, src Pager) (*Outcome, error) {
	tr := otel.Tracer("tracker")
	ctx, span := tr.Start(ctx, "tracker.scan", trace.WithAttributes(
		attribute.Int("watchlist.size", len(w)),
	))
	defer span.End()

	log := obs.WithTrace(ctx, s.logger())
	resolver, _ := src.(Resolver)

	var (
		target     = len(w)
		reconciled int
		cursor     int
		boundary   bool
		overlap    = s.OverlapPages
		remove     = make(map[int64]struct{})
		carry      []int64
		out        = &Outcome{Records: make(map[int64]ci.Record)}
	)

	for page := 1; ; page++ {
		items, err := src.Page(ctx, page)
		out.Pages++
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(items) == 0 {
			log.Debug("history exhausted", zap.Int("page", page),
				zap.Int("reconciled", reconciled), zap.Int("target", target))
			break
		}

		for _, it := range items {
			if boundary && reconciled == target && s.OverlapPages <= 0 {
				break
			}
			if resolver != nil {
				id := it.ID
				it, err = resolver.Resolve(ctx, it)
				if err != nil {
					if errors.Is(err, ci.ErrMalformed) || errors.Is(err, ci.ErrNotFound) {
						out.Skipped++
						log.Warn("skip item", zap.Int64("item_id", id), zap.Error(err))
						continue
					}
					span.RecordError(err)
					return nil, fmt.Errorf("resolve item %d: %w", id, err)
				}
			}

			for cursor < len(w) && w[cursor].ID > it.ID {
				cursor++
			}
			if cursor < len(w) && w[cursor].ID == it.ID {
				cursor++
				reconciled++
				if it.FinishedAt != nil {
					remove[it.ID] = struct{}{}
				}
			}

			switch {
			case it.FinishedAt == nil:
				if !w.Contains(it.ID) {
					carry = append(carry, it.ID)
				}
				out.Records[it.ID] = it.Record
			case it.FinishedAt.After(win.End):
			case !it.FinishedAt.After(win.Start):
				boundary = true
			default:
				out.Records[it.ID] = it.Record
			}
		}

		short := len(items) < s.pageSize()
		if reconciled == target && (boundary || short) {
			if overlap <= 0 {
				break
			}
			overlap--
		}
	}

	now := s.now()
	var cutoff time.Time
	if s.MaxAge > 0 {
		cutoff = now.Add(-s.MaxAge)
	}
	out.Watchlist, out.Evicted = w.apply(remove, carry, now, cutoff)
	out.Reconciled = reconciled
	out.Carried = len(carry)
	out.Removed = len(remove)
	if len(out.Evicted) > 0 {
		log.Warn("evicted stale watchlist entries", zap.Int64s("ids", out.Evicted))
	}

	span.SetAttributes(
		attribute.Int("scan.pages", out.Pages),
		attribute.Int("scan.records", len(out.Records)),
		attribute.Int("scan.reconciled", reconciled),
	)
	return out, nil
}

func (s *Scanner) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Scanner) pageSize() int {
	if s.PageSize <= 0 {
		return ci.PageSize
	}
	return s.PageSize
}

func (s *Scanner) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
