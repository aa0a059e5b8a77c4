package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"doc-verifier/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingStore struct {
	mu      sync.Mutex
	latest  map[uuid.UUID]models.UploadSession
	saves   int
	saveErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{latest: make(map[uuid.UUID]models.UploadSession)}
}

func (s *recordingStore) Save(_ context.Context, session models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.latest[session.WidgetID] = session
	return nil
}

func (s *recordingStore) Get(_ context.Context, id uuid.UUID) (*models.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.latest[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &session, nil
}

func (s *recordingStore) state(id uuid.UUID) models.WidgetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[id].State
}

func newTestWidgetService(ex Extractor, cm Committer, store SnapshotStore) *WidgetService {
	return NewWidgetService(ex, cm, newTestFileService(1), store, MachineOptions{
		Scheduler:  newManualClock(),
		Timings:    DefaultProgressTimings(),
		PeriodHint: "last 3 months",
	}, time.Hour, zap.NewNop())
}

func TestWidgetServiceLifecycle(t *testing.T) {
	store := newRecordingStore()
	cm := &fakeCommitter{result: &models.CommitResult{OK: true}}
	svc := newTestWidgetService(returning(allTrue("DOC-7"), nil), cm, store)
	defer svc.Shutdown()
	ctx := context.Background()

	created, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, created.State)
	assert.Equal(t, models.StateIdle, store.state(created.WidgetID))

	_, err = svc.Upload(created.WidgetID, "statement.png", []byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return store.state(created.WidgetID) == models.StateReview
	}, 2*time.Second, 5*time.Millisecond)

	snap, err := svc.Snapshot(ctx, created.WidgetID)
	require.NoError(t, err)
	assert.Equal(t, "DOC-7", snap.DocumentID)

	_, err = svc.Submit(created.WidgetID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return store.state(created.WidgetID) == models.StateSuccess
	}, 2*time.Second, 5*time.Millisecond)

	reset, err := svc.Reset(created.WidgetID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, reset.State)
	assert.Equal(t, models.StateIdle, store.state(created.WidgetID))
}

func TestWidgetServiceUploadChecks(t *testing.T) {
	ex := newGatedExtractor()
	svc := newTestWidgetService(ex, &fakeCommitter{}, nil)
	defer svc.Shutdown()

	created, err := svc.Create(context.Background())
	require.NoError(t, err)

	_, err = svc.Upload(created.WidgetID, "statement.docx", []byte("data"))
	assert.ErrorIs(t, err, ErrInvalidFile)
	snap, err := svc.Snapshot(context.Background(), created.WidgetID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, snap.State)

	_, err = svc.Upload(created.WidgetID, "statement.png", []byte("png"))
	require.NoError(t, err)
	_, err = svc.Upload(created.WidgetID, "statement.png", []byte("png"))
	assert.ErrorIs(t, err, ErrBusy)

	_, err = svc.Retry(created.WidgetID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ex.call(0).release <- outcome{err: errRemote}
	require.Eventually(t, func() bool {
		s, _ := svc.Snapshot(context.Background(), created.WidgetID)
		return s.State == models.StateError
	}, 2*time.Second, 5*time.Millisecond)

	retried, err := svc.Retry(created.WidgetID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, retried.State)
}

func TestWidgetServiceUnknownWidget(t *testing.T) {
	svc := newTestWidgetService(returning(nil, nil), &fakeCommitter{}, nil)
	id := uuid.New()

	_, err := svc.Snapshot(context.Background(), id)
	assert.ErrorIs(t, err, ErrWidgetNotFound)
	_, err = svc.Upload(id, "a.pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrWidgetNotFound)
	_, err = svc.Submit(id)
	assert.ErrorIs(t, err, ErrWidgetNotFound)
	_, err = svc.Retry(id)
	assert.ErrorIs(t, err, ErrWidgetNotFound)
	_, err = svc.Reset(id)
	assert.ErrorIs(t, err, ErrWidgetNotFound)
}

func TestWidgetServiceServesStoredSnapshot(t *testing.T) {
	store := newRecordingStore()
	stored := models.NewUploadSession(uuid.New())
	stored.State = models.StateSuccess
	require.NoError(t, store.Save(context.Background(), *stored))

	svc := newTestWidgetService(returning(nil, nil), &fakeCommitter{}, store)

	snap, err := svc.Snapshot(context.Background(), stored.WidgetID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, snap.State)

	_, err = svc.Reset(stored.WidgetID)
	assert.ErrorIs(t, err, ErrWidgetNotFound)
}

func TestWidgetServiceCreateFailsWhenStoreFails(t *testing.T) {
	store := newRecordingStore()
	store.saveErr = errors.New("db down")
	svc := newTestWidgetService(returning(nil, nil), &fakeCommitter{}, store)

	_, err := svc.Create(context.Background())
	require.Error(t, err)
	assert.Empty(t, svc.widgets)
}

func TestWidgetServiceEvictsIdleWidgets(t *testing.T) {
	store := newRecordingStore()
	ex := newGatedExtractor()
	svc := newTestWidgetService(ex, &fakeCommitter{}, store)
	defer svc.Shutdown()
	ctx := context.Background()

	now := time.Now()
	svc.now = func() time.Time { return now }

	idle, err := svc.Create(ctx)
	require.NoError(t, err)
	busy, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Upload(busy.WidgetID, "statement.png", []byte("png"))
	require.NoError(t, err)
	fresh, err := svc.Create(ctx)
	require.NoError(t, err)

	now = now.Add(50 * time.Minute)
	_, err = svc.Snapshot(ctx, fresh.WidgetID)
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, svc.EvictIdle())

	svc.mu.Lock()
	assert.NotContains(t, svc.widgets, idle.WidgetID)
	assert.Contains(t, svc.widgets, busy.WidgetID)
	assert.Contains(t, svc.widgets, fresh.WidgetID)
	svc.mu.Unlock()

	// evicted widgets stay readable from the store but no longer accept actions
	snap, err := svc.Snapshot(ctx, idle.WidgetID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, snap.State)
	_, err = svc.Upload(idle.WidgetID, "statement.png", []byte("png"))
	assert.ErrorIs(t, err, ErrWidgetNotFound)

	ex.call(0).release <- outcome{err: errRemote}
	require.Eventually(t, func() bool {
		return store.state(busy.WidgetID) == models.StateError
	}, 2*time.Second, 5*time.Millisecond)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 2, svc.EvictIdle())
	assert.Empty(t, svc.widgets)
}
