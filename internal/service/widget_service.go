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

var ErrWidgetNotFound = errors.New("widget not found")

// SnapshotStore mirrors the latest snapshot of each widget.
type SnapshotStore interface {
	Save(ctx context.Context, session models.UploadSession) error
	Get(ctx context.Context, widgetID uuid.UUID) (*models.UploadSession, error)
}

const defaultIdleTTL = 30 * time.Minute

type hostedWidget struct {
	machine *VerificationMachine
	touched time.Time
}

// WidgetService owns the widget instances hosted by this process, one
// VerificationMachine each. Widgets without in-flight work are evicted after
// idleTTL without requests; their last snapshot stays in the store.
type WidgetService struct {
	mu        sync.Mutex
	widgets   map[uuid.UUID]*hostedWidget
	extractor Extractor
	committer Committer
	files     *FileService
	store     SnapshotStore
	opts      MachineOptions
	idleTTL   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewWidgetService(
	extractor Extractor,
	committer Committer,
	files *FileService,
	store SnapshotStore,
	opts MachineOptions,
	idleTTL time.Duration,
	logger *zap.Logger,
) *WidgetService {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &WidgetService{
		widgets:   make(map[uuid.UUID]*hostedWidget),
		extractor: extractor,
		committer: committer,
		files:     files,
		store:     store,
		opts:      opts,
		idleTTL:   idleTTL,
		now:       time.Now,
		logger:    logger,
	}
}

// Create starts a new widget instance in the idle state.
func (s *WidgetService) Create(ctx context.Context) (models.UploadSession, error) {
	id := uuid.New()
	m := NewVerificationMachine(id, s.extractor, s.committer, s.opts, s.logger)

	if s.store != nil {
		if err := s.store.Save(ctx, m.Snapshot()); err != nil {
			return models.UploadSession{}, fmt.Errorf("failed to save widget: %w", err)
		}
		m.Subscribe(s.persist)
	}

	s.mu.Lock()
	s.widgets[id] = &hostedWidget{machine: m, touched: s.now()}
	s.mu.Unlock()

	s.logger.Info("Widget created", zap.String("widget_id", id.String()))
	return m.Snapshot(), nil
}

func (s *WidgetService) persist(session models.UploadSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, session); err != nil {
		s.logger.Warn("Failed to persist widget snapshot",
			zap.String("widget_id", session.WidgetID.String()),
			zap.String("state", string(session.State)),
			zap.Error(err),
		)
	}
}

// machine looks up a hosted widget and marks it as recently used.
func (s *WidgetService) machine(id uuid.UUID) (*VerificationMachine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.widgets[id]
	if !ok {
		return nil, ErrWidgetNotFound
	}
	w.touched = s.now()
	return w.machine, nil
}

// Snapshot returns the live snapshot of a hosted widget. Widgets hosted by
// an earlier process are served read-only from the store.
func (s *WidgetService) Snapshot(ctx context.Context, id uuid.UUID) (models.UploadSession, error) {
	m, err := s.machine(id)
	if err == nil {
		return m.Snapshot(), nil
	}
	if s.store == nil {
		return models.UploadSession{}, err
	}

	stored, storeErr := s.store.Get(ctx, id)
	if storeErr != nil {
		s.logger.Debug("Widget snapshot not found in store",
			zap.String("widget_id", id.String()),
			zap.Error(storeErr),
		)
		return models.UploadSession{}, ErrWidgetNotFound
	}
	return *stored, nil
}

// Upload runs the selection boundary checks and hands the file to the widget.
func (s *WidgetService) Upload(id uuid.UUID, fileName string, content []byte) (models.UploadSession, error) {
	m, err := s.machine(id)
	if err != nil {
		return models.UploadSession{}, err
	}
	if state := m.State(); state != models.StateIdle {
		return models.UploadSession{}, fmt.Errorf("%w: state is %s", ErrBusy, state)
	}

	ref, err := s.files.Inspect(fileName, content)
	if err != nil {
		return models.UploadSession{}, err
	}
	if err := m.SelectFile(*ref, content); err != nil {
		return models.UploadSession{}, err
	}
	return m.Snapshot(), nil
}

func (s *WidgetService) Retry(id uuid.UUID) (models.UploadSession, error) {
	m, err := s.machine(id)
	if err != nil {
		return models.UploadSession{}, err
	}
	if err := m.Retry(); err != nil {
		return models.UploadSession{}, err
	}
	return m.Snapshot(), nil
}

func (s *WidgetService) Submit(id uuid.UUID) (models.UploadSession, error) {
	m, err := s.machine(id)
	if err != nil {
		return models.UploadSession{}, err
	}
	if err := m.Submit(); err != nil {
		return models.UploadSession{}, err
	}
	return m.Snapshot(), nil
}

func (s *WidgetService) Reset(id uuid.UUID) (models.UploadSession, error) {
	m, err := s.machine(id)
	if err != nil {
		return models.UploadSession{}, err
	}
	m.Reset()
	return m.Snapshot(), nil
}

// EvictIdle closes and drops widgets that have no in-flight work and have not
// been used for idleTTL. It returns the number of evicted widgets.
func (s *WidgetService) EvictIdle() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var evicted []*VerificationMachine
	for id, w := range s.widgets {
		if w.touched.After(cutoff) {
			continue
		}
		state := w.machine.State()
		if state.InProgress() || state == models.StateCommitting {
			continue
		}
		delete(s.widgets, id)
		evicted = append(evicted, w.machine)
	}
	remaining := len(s.widgets)
	s.mu.Unlock()

	for _, m := range evicted {
		m.Close()
	}
	if len(evicted) > 0 {
		s.logger.Info("Idle widgets evicted",
			zap.Int("evicted", len(evicted)),
			zap.Int("hosted", remaining),
		)
	}
	return len(evicted)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *WidgetService) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

// Shutdown cancels in-flight work on every widget and waits for it.
func (s *WidgetService) Shutdown() {
	s.mu.Lock()
	machines := make([]*VerificationMachine, 0, len(s.widgets))
	for _, w := range s.widgets {
		machines = append(machines, w.machine)
	}
	s.mu.Unlock()

	for _, m := range machines {
		m.Close()
	}
	s.logger.Info("Widgets stopped", zap.Int("count", len(machines)))
}
