package feed

import (
	"context"
	"fmt"
	"slices"
	"time"

	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Recorder receives per-computation measurements.
type Recorder interface {
	RecordFeedComputed(d time.Duration, entries int)
	RecordFeedFailure()
}

type nopRecorder struct{}

func (nopRecorder) RecordFeedComputed(time.Duration, int) {}
func (nopRecorder) RecordFeedFailure()                    {}

// Engine composes home feeds. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	src      Source
	logg     *logger.Logger
	recorder Recorder
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logg = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:      src,
		logg:     logger.New(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeFeed returns the viewer's home feed, newest first: the viewer's own
// posts, posts by followees, and posts reposted by followees, one entry per
// post. An empty or unknown viewer gets an empty feed. Store failures are
// returned as is; nothing is retried here.
func (e *Engine) ComputeFeed(ctx context.Context, viewerID string) ([]Entry, error) {
	if viewerID == "" {
		return []Entry{}, nil
	}

	start := time.Now()
	entries, err := e.compute(ctx, viewerID)
	if err != nil {
		e.recorder.RecordFeedFailure()
		return nil, err
	}
	Rank(entries)

	e.recorder.RecordFeedComputed(time.Since(start), len(entries))
	return entries, nil
}

func (e *Engine) compute(ctx context.Context, viewerID string) ([]Entry, error) {
	followees, err := e.src.Followees(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("load followees: %w", err)
	}
	// The viewer's own reposts never count, even with a self-follow edge.
	followees = lo.Uniq(lo.Without(followees, viewerID))
	authors := append(slices.Clone(followees), viewerID)

	var (
		authored []models.Post
		reposts  []models.Repost
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		posts, err := e.src.PostsByAuthors(gctx, authors)
		if err != nil {
			return fmt.Errorf("load authored posts: %w", err)
		}
		authored = posts
		return nil
	})
	if len(followees) > 0 {
		g.Go(func() error {
			rs, err := e.src.RepostsByReposters(gctx, followees)
			if err != nil {
				return fmt.Errorf("load reposts: %w", err)
			}
			reposts = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return e.assemble(ctx, authored, AggregateReposts(followees, reposts))
}

// assemble merges directly authored posts with repost aggregates. A post that
// has an aggregate is only emitted from the repost branch.
func (e *Engine) assemble(ctx context.Context, authored []models.Post, aggregates map[string]*Aggregate) ([]Entry, error) {
	byID := make(map[string]models.Post, len(authored)+len(aggregates))
	entries := make([]Entry, 0, len(authored)+len(aggregates))

	for _, p := range authored {
		if _, dup := byID[p.ID]; dup {
			continue
		}
		byID[p.ID] = p
		if _, reposted := aggregates[p.ID]; reposted {
			continue
		}
		entries = append(entries, Entry{
			Post:          p,
			EffectiveDate: p.Created,
			Reposters:     []string{},
		})
	}

	missing := lo.Filter(lo.Keys(aggregates), func(id string, _ int) bool {
		_, ok := byID[id]
		return !ok
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		posts, err := e.src.PostsByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("resolve reposted posts: %w", err)
		}
		for _, p := range posts {
			if _, ok := aggregates[p.ID]; ok {
				byID[p.ID] = p
			}
		}
	}

	for id, agg := range aggregates {
		p, ok := byID[id]
		if !ok {
			e.logg.Debug("feed", "Skipping repost of a post that no longer resolves")
			continue
		}
		entries = append(entries, Entry{
			Post:          p,
			EffectiveDate: agg.Latest,
			Reposters:     slices.Clone(agg.Reposters),
		})
	}
	return entries, nil
}
