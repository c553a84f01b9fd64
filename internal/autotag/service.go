// Package autotag runs batches of recording lookups for files that need tags and
// proposes the best MusicBrainz match for each.
package autotag

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/strefethen/metalookup-go/internal/api"
	"github.com/strefethen/metalookup-go/internal/lookup"
	"github.com/strefethen/metalookup-go/internal/musicbrainz"
)

var (
	ErrJobNotFound  = errors.New("autotag job not found")
	ErrJobFinished  = errors.New("autotag job already finished")
	ErrNoItems      = errors.New("autotag job needs at least one item")
	ErrTooManyItems = errors.New("autotag job has too many items")
	ErrClosed       = errors.New("autotag service is closed")
)

const (
	DefaultConcurrency    = 4
	DefaultCandidateLimit = 5
	DefaultRetention      = time.Hour
	MaxItems              = 1000
	subscriberBuffer      = 64
)

// Searcher finds candidate recordings. *musicbrainz.Client implements it.
type Searcher interface {
	SearchRecordings(ctx context.Context, owner string, q musicbrainz.RecordingQuery) ([]*musicbrainz.Track, error)
	Cancel(owner string) int
}

// Config tunes a Service.
type Config struct {
	Concurrency    int           // Optional: defaults to DefaultConcurrency
	CandidateLimit int           // Optional: defaults to DefaultCandidateLimit
	MinScore       int           // Optional: candidates scoring below are not proposed
	Retention      time.Duration // Optional: how long finished jobs stay queryable
}

type job struct {
	mu          sync.Mutex
	snapshot    Job
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers map[chan Event]struct{}
}

// Service owns the auto-tag jobs.
type Service struct {
	searcher Searcher
	cfg      Config
	logger   hclog.Logger
	now      func() time.Time

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
	wg     sync.WaitGroup
}

// NewService creates an auto-tag service.
func NewService(searcher Searcher, cfg Config, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Service{
		searcher: searcher,
		cfg:      cfg,
		logger:   logger.Named("autotag"),
		now:      time.Now,
		jobs:     make(map[string]*job),
	}
}

// Start creates a job for items and begins looking them up in the background.
// The job id is also the lookup owner, so canceling the job cancels its queued requests.
func (s *Service) Start(items []Item) (Job, error) {
	if len(items) == 0 {
		return Job{}, ErrNoItems
	}
	if len(items) > MaxItems {
		return Job{}, ErrTooManyItems
	}

	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = Result{Item: item, Status: ItemPending}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		snapshot: Job{
			Object:    api.ObjectAutotagJob,
			ID:        uuid.NewString(),
			State:     JobRunning,
			Total:     len(items),
			Results:   results,
			CreatedAt: s.now(),
		},
		cancel:      cancel,
		done:        make(chan struct{}),
		subscribers: make(map[chan Event]struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return Job{}, ErrClosed
	}
	s.jobs[j.snapshot.ID] = j
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("autotag job started", "job", j.snapshot.ID, "items", len(items))
	go s.run(ctx, j, items)
	return j.copy(), nil
}

// Get returns a snapshot of a job.
func (s *Service) Get(id string) (Job, error) {
	j, ok := s.lookup(id)
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j.copy(), nil
}

// List returns every retained job, newest first.
func (s *Service) List() []Job {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.copy())
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs
}

// Cancel stops a running job and drops its queued and in-flight lookups.
func (s *Service) Cancel(id string) (Job, error) {
	j, ok := s.lookup(id)
	if !ok {
		return Job{}, ErrJobNotFound
	}

	j.mu.Lock()
	running := j.snapshot.State == JobRunning
	j.mu.Unlock()
	if !running {
		return j.copy(), ErrJobFinished
	}

	j.cancel()
	canceled := s.searcher.Cancel(id)
	s.logger.Info("autotag job canceled", "job", id, "lookups_canceled", canceled)

	<-j.done
	return j.copy(), nil
}

// Subscribe streams progress events for a job. The channel is closed after the
// finished event. Call the returned func to stop listening early.
func (s *Service) Subscribe(id string) (<-chan Event, func(), error) {
	j, ok := s.lookup(id)
	if !ok {
		return nil, nil, ErrJobNotFound
	}

	ch := make(chan Event, subscriberBuffer)
	j.mu.Lock()
	if j.snapshot.State != JobRunning {
		ch <- j.finishedEvent()
		close(ch)
		j.mu.Unlock()
		return ch, func() {}, nil
	}
	j.subscribers[ch] = struct{}{}
	j.mu.Unlock()

	unsubscribe := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subscribers[ch]; ok {
			delete(j.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// PruneExpired drops finished jobs older than the retention period.
func (s *Service) PruneExpired(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for id, j := range s.jobs {
		j.mu.Lock()
		finished := j.snapshot.FinishedAt
		j.mu.Unlock()
		if finished != nil && now.Sub(*finished) > s.cfg.Retention {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

// Close cancels every running job and waits for them to stop.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var running []string
	for id, j := range s.jobs {
		j.cancel()
		running = append(running, id)
	}
	s.mu.Unlock()

	for _, id := range running {
		s.searcher.Cancel(id)
	}
	s.wg.Wait()
}

func (s *Service) lookup(id string) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Service) run(ctx context.Context, j *job, items []Item) {
	defer s.wg.Done()
	defer j.cancel()

	id := j.snapshot.ID
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(index int, item Item) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				j.record(index, Result{Item: item, Status: ItemCanceled})
				return
			}
			defer sem.Release(1)

			j.record(index, s.lookupItem(ctx, id, item))
		}(i, item)
	}
	wg.Wait()

	state := JobCompleted
	if ctx.Err() != nil {
		state = JobCanceled
	}
	j.finish(state, s.now())
	s.logger.Info("autotag job finished", "job", id, "state", state)
}

func (s *Service) lookupItem(ctx context.Context, owner string, item Item) Result {
	if ctx.Err() != nil {
		return Result{Item: item, Status: ItemCanceled}
	}

	tracks, err := s.searcher.SearchRecordings(ctx, owner, musicbrainz.RecordingQuery{
		Title:  item.Title,
		Artist: item.Artist,
		Album:  item.Album,
		Limit:  s.cfg.CandidateLimit,
	})
	switch {
	case errors.Is(err, lookup.ErrCanceled) || errors.Is(err, context.Canceled) || ctx.Err() != nil:
		// Teardown, not a failure.
		return Result{Item: item, Status: ItemCanceled}
	case errors.Is(err, musicbrainz.ErrEmptyQuery):
		return Result{Item: item, Status: ItemUnmatched}
	case err != nil:
		s.logger.Warn("autotag lookup failed", "job", owner, "item", item.ID, "error", err)
		return Result{Item: item, Status: ItemFailed, Error: err.Error()}
	}

	best := bestMatch(tracks, s.cfg.MinScore)
	if best == nil {
		return Result{Item: item, Status: ItemUnmatched}
	}
	return Result{Item: item, Status: ItemMatched, Match: best}
}

// bestMatch returns the highest scoring candidate at or above minScore. The first
// candidate wins a tie, matching the server's own ranking.
func bestMatch(tracks []*musicbrainz.Track, minScore int) *musicbrainz.Track {
	var best *musicbrainz.Track
	for _, track := range tracks {
		if track == nil || track.Score < minScore || strings.TrimSpace(track.Title) == "" {
			continue
		}
		if best == nil || track.Score > best.Score {
			best = track
		}
	}
	return best
}

func (j *job) record(index int, result Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshot.Results[index] = result
	j.snapshot.Done++
	j.publish(Event{
		Type:   EventItem,
		JobID:  j.snapshot.ID,
		State:  j.snapshot.State,
		Done:   j.snapshot.Done,
		Total:  j.snapshot.Total,
		Index:  index,
		Result: &result,
	})
}

func (j *job) finish(state JobState, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshot.State = state
	j.snapshot.FinishedAt = &at
	event := j.finishedEvent()
	for ch := range j.subscribers {
		// The finished event always fits: make room by dropping the oldest item event.
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
		delete(j.subscribers, ch)
		close(ch)
	}
	close(j.done)
}

// publish must be called with j.mu held. Slow subscribers miss item events rather
// than stalling the job.
func (j *job) publish(event Event) {
	for ch := range j.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (j *job) finishedEvent() Event {
	return Event{
		Type:  EventFinished,
		JobID: j.snapshot.ID,
		State: j.snapshot.State,
		Done:  j.snapshot.Done,
		Total: j.snapshot.Total,
	}
}

func (j *job) copy() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	snapshot := j.snapshot
	snapshot.Results = append([]Result(nil), j.snapshot.Results...)
	return snapshot
}
