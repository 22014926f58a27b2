package discovery

import (
	"context"
	"fmt"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Lister is the part of ci.Source discovery needs.
type Lister interface {
	GroupProjects(ctx context.Context, groupID int64, page int) ([]ci.Project, error)
	Subgroups(ctx context.Context, groupID int64, page int) ([]ci.Group, error)
}

// Inventory is the result of one discovery pass. It is not modified after
// Discover returns.
type Inventory struct {
	Projects []ci.Project
	GroupOf  map[int64]int64
	Groups   int
}

type Discoverer struct {
	log      *zap.Logger
	src      Lister
	ignored  map[string]struct{}
	pageSize int
}

func New(log *zap.Logger, src Lister, ignored []string) *Discoverer {
	if log == nil {
		log = zap.NewNop()
	}
	set := make(map[string]struct{}, len(ignored))
	for _, p := range ignored {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return &Discoverer{log: log, src: src, ignored: set, pageSize: ci.PageSize}
}

// Discover walks the group tree below root breadth first. Projects are bound
// to the first group they were listed under. Ignored subgroups are skipped
// together with everything below them.
func (d *Discoverer) Discover(ctx context.Context, root int64) (*Inventory, error) {
	ctx, span := otel.Tracer("discovery").Start(ctx, "discovery.walk")
	defer span.End()

	inv := &Inventory{GroupOf: make(map[int64]int64)}
	seen := map[int64]struct{}{root: {}}
	queue := []int64{root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := queue[0]
		queue = queue[1:]
		inv.Groups++

		err := d.each(ctx, func(page int) (int, error) {
			projects, err := d.src.GroupProjects(ctx, group, page)
			if err != nil {
				return 0, err
			}
			for _, p := range projects {
				if _, dup := inv.GroupOf[p.ID]; dup {
					continue
				}
				p.GroupID = group
				inv.GroupOf[p.ID] = group
				inv.Projects = append(inv.Projects, p)
			}
			return len(projects), nil
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("list projects of group %d: %w", group, err)
		}

		err = d.each(ctx, func(page int) (int, error) {
			subs, err := d.src.Subgroups(ctx, group, page)
			if err != nil {
				return 0, err
			}
			for _, sg := range subs {
				if _, skip := d.ignored[sg.FullPath]; skip {
					d.log.Debug("skip ignored subgroup", zap.String("full_path", sg.FullPath))
					continue
				}
				if _, dup := seen[sg.ID]; dup {
					continue
				}
				seen[sg.ID] = struct{}{}
				queue = append(queue, sg.ID)
			}
			return len(subs), nil
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("list subgroups of group %d: %w", group, err)
		}
	}

	span.SetAttributes(
		attribute.Int("discovery.groups", inv.Groups),
		attribute.Int("discovery.projects", len(inv.Projects)),
	)
	d.log.Debug("discovery done", zap.Int("groups", inv.Groups), zap.Int("projects", len(inv.Projects)))
	return inv, nil
}

// each calls fetch for pages 1, 2, ... until a page comes back short.
func (d *Discoverer) each(ctx context.Context, fetch func(page int) (int, error)) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := fetch(page)
		if err != nil {
			return err
		}
		if n < d.pageSize {
			return nil
		}
	}
}
