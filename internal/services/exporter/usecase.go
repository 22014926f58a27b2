package exporter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NordCoder/Pipewatch/internal/discovery"
	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/NordCoder/Pipewatch/internal/obs"
	"github.com/NordCoder/Pipewatch/internal/obs/retry"
	"github.com/NordCoder/Pipewatch/internal/services/exporter/repo"
	"github.com/NordCoder/Pipewatch/internal/tracker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type TokenSelector interface {
	Select(ctx context.Context) (ci.Source, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Usecase struct {
	Log     *zap.Logger
	State   *tracker.State
	Scanner *tracker.Scanner
	Tokens  TokenSelector
	Sink    ci.Sink
	Clock   ci.Clock

	GroupID int64
	Ignored []string
	Policy  func(name string) retry.Policy
}

type CycleStats struct {
	Window    tracker.Window
	Projects  int
	Runners   int
	Pipelines int
	Jobs      int
	Failed    []string
}

func (s CycleStats) OK() bool { return len(s.Failed) == 0 }

func NewUC(log *zap.Logger, state *tracker.State, scanner *tracker.Scanner, tokens TokenSelector, sink ci.Sink, groupID int64, ignored []string) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		Log:     log,
		State:   state,
		Scanner: scanner,
		Tokens:  tokens,
		Sink:    sink,
		Clock:   systemClock{},
		GroupID: groupID,
		Ignored: ignored,
		Policy:  func(name string) retry.Policy { return retry.DefaultFetchPolicy(name, log) },
	}
}

// Cycle runs one poll: it advances the window, picks a token, scans
// pipelines and jobs and hands the records to the sink. A failed scan
// operation only empties that kind for this cycle; the returned error is
// reserved for conditions the exporter cannot continue after.
func (u *Usecase) Cycle(ctx context.Context) (CycleStats, error) {
	tr := otel.Tracer("exporter.uc")
	ctx, span := tr.Start(ctx, "exporter.cycle", trace.WithAttributes(attribute.Int64("group.id", u.GroupID)))
	defer span.End()
	log := obs.WithTrace(ctx, u.Log)

	stats := CycleStats{Window: u.State.NextWindow(u.Clock.Now())}
	span.SetAttributes(
		attribute.String("window.start", stats.Window.Start.Format(time.RFC3339)),
		attribute.String("window.end", stats.Window.End.Format(time.RFC3339)),
	)

	src, err := u.Tokens.Select(ctx)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil || retry.IsPermanent(err) {
			return stats, fmt.Errorf("select token: %w", err)
		}
		stats.Failed = append(stats.Failed, "select token")
		log.Error("token selection failed", zap.Error(err))
		return stats, nil
	}

	pipelines, projects, err := u.pipelines(ctx, src, stats.Window)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Failed = append(stats.Failed, string(ci.KindPipeline))
		span.RecordError(err)
		log.Error("pipelines scan failed", zap.Error(err))
	}
	stats.Projects = projects

	jobs, runners, err := u.jobs(ctx, src, stats.Window)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Failed = append(stats.Failed, string(ci.KindJob))
		span.RecordError(err)
		log.Error("jobs scan failed", zap.Error(err))
	}
	stats.Runners = runners

	for _, batch := range []struct {
		kind    ci.Kind
		records []ci.Record
		n       *int
	}{
		{ci.KindPipeline, pipelines, &stats.Pipelines},
		{ci.KindJob, jobs, &stats.Jobs},
	} {
		if err := u.Sink.Emit(ctx, batch.kind, batch.records); err != nil {
			stats.Failed = append(stats.Failed, "emit "+string(batch.kind))
			log.Error("emit failed", zap.String("kind", batch.kind.String()), zap.Error(err))
			continue
		}
		*batch.n = len(batch.records)
	}

	span.SetAttributes(
		attribute.Int("cycle.pipelines", stats.Pipelines),
		attribute.Int("cycle.jobs", stats.Jobs),
	)
	return stats, nil
}

func (u *Usecase) pipelines(ctx context.Context, src ci.Source, win tracker.Window) ([]ci.Record, int, error) {
	var (
		out      map[int64]ci.Record
		staged   map[tracker.Key]tracker.Watchlist
		projects int
	)
	err := retry.Do(ctx, func(ctx context.Context) error {
		out = make(map[int64]ci.Record)
		staged = make(map[tracker.Key]tracker.Watchlist)

		inv, err := discovery.New(u.Log, src, u.Ignored).Discover(ctx, u.GroupID)
		if err != nil {
			return fmt.Errorf("discover: %w", err)
		}
		u.State.BindGroups(inv.GroupOf)
		projects = len(inv.Projects)

		for _, p := range inv.Projects {
			group, ok := u.State.GroupOf(p.ID)
			if ok {
				p.GroupID = group
			}
			key := tracker.Key{Kind: ci.KindPipeline, Resource: p.ID}
			res, err := u.Scanner.Scan(ctx, u.State.Watchlist(key), win, repo.Pipelines{Src: src, Project: p})
			if err != nil {
				return fmt.Errorf("project %d (%s): %w", p.ID, p.PathWithNamespace, err)
			}
			staged[key] = res.Watchlist
			for id, rec := range res.Records {
				out[id] = rec
			}
		}
		return nil
	}, u.policy("scan_pipelines"))
	if err != nil {
		return nil, projects, err
	}
	u.State.Commit(staged)
	return sorted(out), projects, nil
}

func (u *Usecase) jobs(ctx context.Context, src ci.Source, win tracker.Window) ([]ci.Record, int, error) {
	var (
		out     map[int64]ci.Record
		staged  map[tracker.Key]tracker.Watchlist
		runners int
	)
	err := retry.Do(ctx, func(ctx context.Context) error {
		out = make(map[int64]ci.Record)
		staged = make(map[tracker.Key]tracker.Watchlist)

		list, err := groupRunners(ctx, src, u.GroupID)
		if err != nil {
			return fmt.Errorf("list runners: %w", err)
		}
		runners = len(list)

		for _, r := range list {
			key := tracker.Key{Kind: ci.KindJob, Resource: r.ID}
			res, err := u.Scanner.Scan(ctx, u.State.Watchlist(key), win, repo.Jobs{Src: src, Runner: r, GroupOf: u.State.GroupOf})
			if err != nil {
				return fmt.Errorf("runner %d: %w", r.ID, err)
			}
			staged[key] = res.Watchlist
			for id, rec := range res.Records {
				out[id] = rec
			}
		}
		return nil
	}, u.policy("scan_jobs"))
	if err != nil {
		return nil, runners, err
	}
	u.State.Commit(staged)
	return sorted(out), runners, nil
}

func (u *Usecase) policy(name string) retry.Policy {
	if u.Policy == nil {
		return retry.DefaultFetchPolicy(name, u.Log)
	}
	return u.Policy(name)
}

func groupRunners(ctx context.Context, src ci.Source, groupID int64) ([]ci.Runner, error) {
	var out []ci.Runner
	seen := make(map[int64]struct{})
	for page := 1; ; page++ {
		rs, err := src.GroupRunners(ctx, groupID, page)
		if err != nil {
			return nil, err
		}
		for _, r := range rs {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
		if len(rs) < ci.PageSize {
			return out, nil
		}
	}
}

// sorted returns the records newest first.
func sorted(m map[int64]ci.Record) []ci.Record {
	out := make([]ci.Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
