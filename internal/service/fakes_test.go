package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"doc-verifier/internal/models"
)

// manualClock is a Scheduler whose timers only fire on Advance.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	due   time.Duration
	seq   int
	f     func()
	done  bool
}

func newManualClock() *manualClock {
	return &manualClock{}
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, due: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves the clock forward, firing due timers in order. Callbacks run
// on the caller's goroutine without the clock lock held.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var live []*manualTimer
		for _, t := range c.timers {
			if !t.done {
				live = append(live, t)
			}
		}
		c.timers = live
		sort.Slice(live, func(i, j int) bool {
			if live[i].due == live[j].due {
				return live[i].seq < live[j].seq
			}
			return live[i].due < live[j].due
		})
		if len(live) == 0 || live[0].due > target {
			c.now = target
			c.mu.Unlock()
			return
		}
		next := live[0]
		next.done = true
		c.now = next.due
		c.mu.Unlock()

		next.f()
	}
}

type extractFunc func(ctx context.Context, file models.FileRef, content []byte) (*models.ExtractionResult, error)

type fakeExtractor struct {
	calls atomic.Int32
	fn    extractFunc
}

func (f *fakeExtractor) ExtractDocument(ctx context.Context, file models.FileRef, content []byte) (*models.ExtractionResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, file, content)
}

func returning(r *models.ExtractionResult, err error) *fakeExtractor {
	return &fakeExtractor{fn: func(context.Context, models.FileRef, []byte) (*models.ExtractionResult, error) {
		return r, err
	}}
}

// gatedCall resolves only when its release channel receives an outcome. It
// ignores context cancellation to model a response that arrives late.
type gatedCall struct {
	release chan outcome
}

type outcome struct {
	result *models.ExtractionResult
	err    error
}

type gatedExtractor struct {
	mu    sync.Mutex
	calls []*gatedCall
	ready chan struct{}
}

func newGatedExtractor() *gatedExtractor {
	return &gatedExtractor{ready: make(chan struct{}, 16)}
}

func (g *gatedExtractor) ExtractDocument(ctx context.Context, file models.FileRef, content []byte) (*models.ExtractionResult, error) {
	call := &gatedCall{release: make(chan outcome, 1)}
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
	g.ready <- struct{}{}

	o := <-call.release
	return o.result, o.err
}

func (g *gatedExtractor) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// call waits for the n-th (0-based) extract call to start.
func (g *gatedExtractor) call(n int) *gatedCall {
	for {
		g.mu.Lock()
		if len(g.calls) > n {
			c := g.calls[n]
			g.mu.Unlock()
			return c
		}
		g.mu.Unlock()
		select {
		case <-g.ready:
		case <-time.After(2 * time.Second):
			panic("extract call never started")
		}
	}
}

type fakeCommitter struct {
	calls  atomic.Int32
	result *models.CommitResult
	err    error
	gate   chan struct{}
}

func (f *fakeCommitter) CommitDocument(ctx context.Context, documentID string) (*models.CommitResult, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.result, f.err
}

func allTrue(docID string) *models.ExtractionResult {
	return &models.ExtractionResult{
		Name:               true,
		Address:            true,
		AccountNumber:      true,
		AccountNumberValue: []string{"1234"},
		Period:             "2024/01/01-2024/06/30",
		DocID:              docID,
	}
}

var errRemote = errors.New("remote extraction failed")

// scenarioExtractor cycles through the six canned outcomes of the demo widget.
type scenarioExtractor struct {
	mu    sync.Mutex
	index int
}

func (s *scenarioExtractor) ExtractDocument(ctx context.Context, file models.FileRef, content []byte) (*models.ExtractionResult, error) {
	s.mu.Lock()
	i := s.index % 6
	s.index++
	s.mu.Unlock()

	switch i {
	case 0:
		return allTrue("DOC-1"), nil
	case 1:
		r := allTrue("DOC-2")
		r.Name, r.Address = false, false
		return r, nil
	case 2:
		r := allTrue("DOC-3")
		r.Period = ""
		return r, nil
	case 3:
		r := allTrue("DOC-2024-001234")
		r.Verified = true
		r.Source = "Chase Bank Portal"
		r.GeneratedOn = "December 10, 2024"
		return r, nil
	case 4:
		return &models.ExtractionResult{Unprocessable: true}, nil
	default:
		return nil, errRemote
	}
}
