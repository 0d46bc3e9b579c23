package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/cache"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/metrics"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"github.com/samber/lo"
)

var logg = logger.New()

const (
	fanoutLimit = 20
	// viewers per cache Invalidate call
	invalidateBatch = 100
)

// Worker consumes activity events from Kafka and drops the cached feeds of
// every viewer the event may have changed.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.EventReader
	cache        cache.FeedCache
	metrics      metrics.MetricsCollector
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
// A nil collector disables metrics.
func New(store store.StoreInterface, reader appkafka.EventReader, fc cache.FeedCache, mc metrics.MetricsCollector, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Worker{
		store:        store,
		reader:       reader,
		cache:        fc,
		metrics:      mc,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing. It returns once ctx
// is canceled and every queued event has been handled or abandoned.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}
	if w.metrics == nil {
		w.metrics = metrics.Nop{}
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
			logg.Error("worker", "Kafka read error, backing off", err)
			if !waitWithContext(ctx, backoff) {
				return
			}
			retry++
			continue
		}
		retry = 0

		if len(msg.Value) == 0 {
			if !waitWithContext(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}

		w.enqueue(ctx, jobs, msg.Value)
	}
}

// enqueue blocks until the job is queued or ctx ends, logging while the
// queue stays full.
func (w *Worker) enqueue(ctx context.Context, jobs chan<- []byte, data []byte) {
	for {
		select {
		case jobs <- data:
			return
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
			logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
		}
	}
}

// processLoop decodes events and invalidates the affected feeds.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.handleMessage(ctx, data); err != nil {
				logg.Error("worker", "Failed to handle activity event", err)
			}
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, data []byte) error {
	ev, err := appkafka.DecodeEvent(data)
	if err != nil {
		w.metrics.RecordEventFailure("invalid")
		return err
	}

	viewers, err := w.audience(ctx, ev)
	if err != nil {
		w.metrics.RecordEventFailure(string(ev.Kind))
		return fmt.Errorf("resolve audience for %s: %w", ev.Kind, err)
	}

	if err := w.invalidate(ctx, viewers); err != nil {
		w.metrics.RecordEventFailure(string(ev.Kind))
		return fmt.Errorf("invalidate feeds for %s: %w", ev.Kind, err)
	}

	w.metrics.RecordEventProcessed(string(ev.Kind))
	w.metrics.RecordInvalidations(len(viewers))
	logg.Debug("worker", "Invalidated "+fmt.Sprint(len(viewers))+" feeds for "+string(ev.Kind))
	return nil
}

// audience returns the viewers whose home feed may change because of ev.
//   - post_created by A: A and every follower of A
//   - repost_created by R: every follower of R (own reposts never show)
//   - follow_created / follow_removed by U: U only
func (w *Worker) audience(ctx context.Context, ev models.Event) ([]string, error) {
	switch ev.Kind {
	case models.EventPostCreated:
		followers, err := w.store.GetFollowers(ctx, ev.ActorID)
		if err != nil {
			return nil, err
		}
		return lo.Uniq(append(followers, ev.ActorID)), nil
	case models.EventRepostCreated:
		followers, err := w.store.GetFollowers(ctx, ev.ActorID)
		if err != nil {
			return nil, err
		}
		return lo.Uniq(lo.Without(followers, ev.ActorID)), nil
	case models.EventFollowCreated, models.EventFollowRemoved:
		return []string{ev.ActorID}, nil
	default:
		logg.Info("worker", "Ignoring unknown event kind "+string(ev.Kind))
		return nil, nil
	}
}

// invalidate drops viewers' feeds in batches, at most fanoutLimit batches in
// flight. The first error is returned after every batch has finished.
func (w *Worker) invalidate(ctx context.Context, viewers []string) error {
	var (
		fanoutWG  sync.WaitGroup
		errOnce   sync.Once
		firstErr  error
		semaphore = make(chan struct{}, fanoutLimit)
	)

	for _, batch := range lo.Chunk(viewers, invalidateBatch) {
		select {
		case <-ctx.Done():
			fanoutWG.Wait()
			return ctx.Err()
		case semaphore <- struct{}{}:
		}

		fanoutWG.Add(1)
		go func(ids []string) {
			defer fanoutWG.Done()
			defer func() { <-semaphore }()
			if err := w.cache.Invalidate(ctx, ids...); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(batch)
	}

	fanoutWG.Wait()
	return firstErr
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader, the feed cache and the store.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	if w.cache != nil {
		if err := w.cache.Close(); err != nil {
			logg.Error("worker", "Error closing feed cache", err)
			return err
		}
	}

	logg.Info("worker", "Closing store")
	w.store.Close()
	return nil
}
