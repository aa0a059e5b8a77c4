package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"doc-verifier/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusy              = errors.New("widget is busy with another document")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPrecondition      = errors.New("precondition failed")
	ErrUnprocessable     = errors.New("document could not be processed")
)

// Extractor submits a document for field extraction. A nil result with a nil
// error means the remote side is not ready yet.
type Extractor interface {
	ExtractDocument(ctx context.Context, file models.FileRef, content []byte) (*models.ExtractionResult, error)
}

// Committer finalizes a previously extracted document.
type Committer interface {
	CommitDocument(ctx context.Context, documentID string) (*models.CommitResult, error)
}

var allowedTransitions = map[models.WidgetState][]models.WidgetState{
	models.StateIdle:          {models.StateUploading},
	models.StateUploading:     {models.StateProcessing, models.StateValidating, models.StateReview, models.StateVerified, models.StateError, models.StateUnprocessable},
	models.StateProcessing:    {models.StateValidating, models.StateReview, models.StateVerified, models.StateError, models.StateUnprocessable},
	models.StateValidating:    {models.StateReview, models.StateVerified, models.StateError, models.StateUnprocessable},
	models.StateReview:        {models.StateCommitting, models.StateIdle},
	models.StateVerified:      {models.StateIdle},
	models.StateCommitting:    {models.StateSuccess, models.StateError},
	models.StateSuccess:       {},
	models.StateError:         {models.StateIdle},
	models.StateUnprocessable: {models.StateIdle},
}

func canTransition(from, to models.WidgetState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// VerificationMachine drives one UploadSession through the verification
// lifecycle. All mutations happen under mu; asynchronous results carry the
// session generation they were started with and are dropped once it moves on.
type VerificationMachine struct {
	mu            sync.Mutex
	session       *models.UploadSession
	extractor     Extractor
	committer     Committer
	scheduler     Scheduler
	timings       ProgressTimings
	periodHint    string
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	cancelExtract context.CancelFunc
	timers        []Timer
	ticker        Timer
	inflight      sync.WaitGroup

	subscribers map[int]func(models.UploadSession)
	nextSubID   int
	pending     []models.UploadSession
	flushing    bool
}

type MachineOptions struct {
	Scheduler  Scheduler
	Timings    ProgressTimings
	PeriodHint string
}

func NewVerificationMachine(
	widgetID uuid.UUID,
	extractor Extractor,
	committer Committer,
	opts MachineOptions,
	logger *zap.Logger,
) *VerificationMachine {
	if opts.Scheduler == nil {
		opts.Scheduler = NewRealScheduler()
	}
	opts.Timings = opts.Timings.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &VerificationMachine{
		session:     models.NewUploadSession(widgetID),
		extractor:   extractor,
		committer:   committer,
		scheduler:   opts.Scheduler,
		timings:     opts.Timings,
		periodHint:  opts.PeriodHint,
		logger:      logger.With(zap.String("widget_id", widgetID.String())),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]func(models.UploadSession)),
	}
}

// Snapshot returns a copy of the current session.
func (m *VerificationMachine) Snapshot() models.UploadSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

func (m *VerificationMachine) State() models.WidgetState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

// Subscribe registers fn to receive a snapshot after every state change.
// Snapshots are delivered in transition order.
func (m *VerificationMachine) Subscribe(fn func(models.UploadSession)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// SelectFile stores the file, enters uploading, starts the cosmetic progress
// timers and submits the document to the extractor.
func (m *VerificationMachine) SelectFile(file models.FileRef, content []byte) error {
	m.mu.Lock()
	if m.session.State != models.StateIdle {
		state := m.session.State
		m.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrBusy, state)
	}

	m.session.Generation++
	gen := m.session.Generation
	f := file
	m.session.File = &f
	if err := m.transition(models.StateUploading); err != nil {
		m.mu.Unlock()
		return err
	}

	m.schedule(m.timings.ProcessingAfter, func(s *models.UploadSession) bool {
		return s.State == models.StateUploading
	}, func() {
		_ = m.transition(models.StateProcessing)
	})
	m.schedule(m.timings.ValidatingAfter, func(s *models.UploadSession) bool {
		return s.State == models.StateUploading || s.State == models.StateProcessing
	}, func() {
		_ = m.transition(models.StateValidating)
	})

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelExtract = cancel
	m.inflight.Add(1)
	m.mu.Unlock()

	m.logger.Info("Document selected",
		zap.String("file", file.Name),
		zap.Int64("size", file.Size),
		zap.Uint64("generation", gen),
	)

	go m.runExtract(ctx, gen, file, content)

	m.flush()
	return nil
}

func (m *VerificationMachine) runExtract(ctx context.Context, gen uint64, file models.FileRef, content []byte) {
	defer m.inflight.Done()

	result, err := m.extractor.ExtractDocument(ctx, file, content)

	m.mu.Lock()
	if m.session.Generation != gen || !m.session.State.InProgress() {
		m.mu.Unlock()
		m.logger.Debug("Discarding stale extraction result",
			zap.Uint64("generation", gen),
			zap.Error(err),
		)
		return
	}
	m.applyExtraction(result, err)
	m.mu.Unlock()

	m.flush()
}

func (m *VerificationMachine) applyExtraction(result *models.ExtractionResult, err error) {
	switch {
	case err != nil && errors.Is(err, ErrUnprocessable):
		m.session.LastError = err.Error()
		m.stopTimers()
		_ = m.transition(models.StateUnprocessable)
	case err != nil:
		m.logger.Warn("Extraction failed", zap.Error(err))
		m.session.LastError = err.Error()
		m.stopTimers()
		_ = m.transition(models.StateError)
	case result == nil:
		m.logger.Info("Extraction pending, awaiting result")
	case result.IsUnprocessable():
		m.session.LastError = ErrUnprocessable.Error()
		m.stopTimers()
		_ = m.transition(models.StateUnprocessable)
	default:
		rec := Reconcile(result, m.periodHint)
		m.session.Fields = rec.Fields
		dv := rec.DisplayValues
		m.session.DisplayValues = &dv
		m.session.Notices = rec.Notices
		m.session.DocumentID = result.DocID
		m.stopTimers()

		next := models.StateReview
		if result.Verified {
			next = models.StateVerified
			m.session.Verification = &models.VerificationDetails{
				Source:      result.Source,
				GeneratedOn: result.GeneratedOn,
			}
		}
		_ = m.transition(next)
	}
}

// Submit commits the reviewed document. It requires the review state and a
// document id; otherwise it returns ErrPrecondition without side effects.
func (m *VerificationMachine) Submit() error {
	m.mu.Lock()
	if m.session.State != models.StateReview {
		state := m.session.State
		m.mu.Unlock()
		return fmt.Errorf("%w: submit requires review state, got %s", ErrPrecondition, state)
	}
	if m.session.DocumentID == "" {
		m.mu.Unlock()
		return fmt.Errorf("%w: no document id to commit", ErrPrecondition)
	}

	gen := m.session.Generation
	docID := m.session.DocumentID
	if err := m.transition(models.StateCommitting); err != nil {
		m.mu.Unlock()
		return err
	}
	m.inflight.Add(1)
	m.mu.Unlock()

	go m.runCommit(gen, docID)

	m.flush()
	return nil
}

func (m *VerificationMachine) runCommit(gen uint64, docID string) {
	defer m.inflight.Done()

	result, err := m.committer.CommitDocument(m.ctx, docID)

	m.mu.Lock()
	if m.session.Generation != gen || m.session.State != models.StateCommitting {
		m.mu.Unlock()
		m.logger.Debug("Discarding stale commit result", zap.Uint64("generation", gen))
		return
	}

	switch {
	case err != nil:
		m.logger.Warn("Commit failed", zap.String("document_id", docID), zap.Error(err))
		m.session.LastError = err.Error()
		_ = m.transition(models.StateError)
	case result == nil || !result.OK:
		msg := "commit rejected"
		if result != nil && result.Message != "" {
			msg = result.Message
		}
		m.logger.Warn("Commit rejected", zap.String("document_id", docID), zap.String("message", msg))
		m.session.LastError = msg
		_ = m.transition(models.StateError)
	default:
		m.logger.Info("Document committed", zap.String("document_id", docID))
		_ = m.transition(models.StateSuccess)
	}
	m.mu.Unlock()

	m.flush()
}

// Retry clears the session back to idle. It is permitted from review,
// verified, error and unprocessable.
func (m *VerificationMachine) Retry() error {
	m.mu.Lock()
	if !m.session.State.Retryable() {
		state := m.session.State
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot retry from %s", ErrInvalidTransition, state)
	}
	m.resetLocked()
	m.mu.Unlock()

	m.flush()
	return nil
}

func (m *VerificationMachine) RetryFromReview() error { return m.Retry() }

func (m *VerificationMachine) RetryFromError() error { return m.Retry() }

// Reset is the external full reset; it is allowed from any state, including
// success.
func (m *VerificationMachine) Reset() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()

	m.flush()
}

// Close cancels in-flight collaborator calls and timers and waits for the
// calls to return.
func (m *VerificationMachine) Close() {
	m.mu.Lock()
	m.stopTimers()
	m.mu.Unlock()

	m.cancel()
	m.inflight.Wait()
}

// Wait blocks until every collaborator call started so far has returned and
// its effect, if any, has been applied.
func (m *VerificationMachine) Wait() {
	m.inflight.Wait()
}

func (m *VerificationMachine) resetLocked() {
	if m.cancelExtract != nil {
		m.cancelExtract()
		m.cancelExtract = nil
	}
	m.stopTimers()

	s := m.session
	s.Generation++
	s.File = nil
	s.Fields = models.NewFieldChecks()
	s.DisplayValues = nil
	s.DocumentID = ""
	s.Notices = nil
	s.Verification = nil
	s.LastError = ""
	s.ProgressTick = 0

	from := s.State
	m.setState(models.StateIdle)
	m.logger.Info("Session reset",
		zap.String("from", string(from)),
		zap.Uint64("generation", s.Generation),
	)
}

// transition moves the session to the given state if the table allows it.
// Must be called with mu held.
func (m *VerificationMachine) transition(to models.WidgetState) error {
	from := m.session.State
	if !canTransition(from, to) {
		m.logger.Warn("Refusing transition",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if to == models.StateError || to == models.StateUnprocessable {
		m.session.DocumentID = ""
	}
	m.setState(to)

	m.logger.Debug("State transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Uint64("generation", m.session.Generation),
	)
	return nil
}

func (m *VerificationMachine) setState(to models.WidgetState) {
	m.session.State = to
	m.session.UpdatedAt = time.Now()
	if to.InProgress() {
		m.session.ProgressTick = 0
		m.startMessageTicker(to)
	}
	m.enqueue()
}

// startMessageTicker cycles the progress message while the session stays in
// the given state. The ticker keeps a single live timer handle.
func (m *VerificationMachine) startMessageTicker(state models.WidgetState) {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	guard := func(s *models.UploadSession) bool { return s.State == state }
	var tick func()
	tick = func() {
		m.session.ProgressTick++
		m.enqueue()
		m.ticker = m.arm(m.timings.MessageInterval, guard, tick)
	}
	m.ticker = m.arm(m.timings.MessageInterval, guard, tick)
}

// schedule runs effect after delay if the session generation is unchanged and
// guard still holds. Must be called with mu held; effect runs with mu held.
func (m *VerificationMachine) schedule(delay time.Duration, guard func(*models.UploadSession) bool, effect func()) {
	m.timers = append(m.timers, m.arm(delay, guard, effect))
}

func (m *VerificationMachine) arm(delay time.Duration, guard func(*models.UploadSession) bool, effect func()) Timer {
	gen := m.session.Generation
	return m.scheduler.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.session.Generation != gen || !guard(m.session) {
			m.mu.Unlock()
			return
		}
		effect()
		m.mu.Unlock()
		m.flush()
	})
}

func (m *VerificationMachine) stopTimers() {
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

func (m *VerificationMachine) enqueue() {
	if len(m.subscribers) == 0 {
		return
	}
	m.pending = append(m.pending, m.session.Clone())
}

// flush delivers queued snapshots outside mu. Only one caller drains the
// queue at a time, so subscribers see snapshots in transition order and may
// call back into the machine.
func (m *VerificationMachine) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true

	for {
		if len(m.pending) == 0 {
			m.flushing = false
			m.mu.Unlock()
			return
		}
		snap := m.pending[0]
		m.pending = m.pending[1:]
		subs := make([]func(models.UploadSession), 0, len(m.subscribers))
		for _, fn := range m.subscribers {
			subs = append(subs, fn)
		}
		m.mu.Unlock()

		for _, fn := range subs {
			fn(snap)
		}

		m.mu.Lock()
	}
}
