package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"doc-verifier/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

var sessionColumns = []string{
	"widget_id", "generation", "state", "file_name", "file_size", "file_mime_type",
	"fields", "display_values", "notices", "document_id", "last_error", "updated_at",
}

// SessionRepository keeps the latest snapshot of every widget, one row per
// widget, overwritten on each transition.
type SessionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSessionRepository(db *pgxpool.Pool, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SessionRepository) Save(ctx context.Context, s models.UploadSession) error {
	query, err := upsertSessionQuery(s)
	if err != nil {
		return err
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func upsertSessionQuery(s models.UploadSession) (squirrel.InsertBuilder, error) {
	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return squirrel.InsertBuilder{}, fmt.Errorf("failed to encode fields: %w", err)
	}
	var displayValues, notices []byte
	if s.DisplayValues != nil {
		if displayValues, err = json.Marshal(s.DisplayValues); err != nil {
			return squirrel.InsertBuilder{}, fmt.Errorf("failed to encode display values: %w", err)
		}
	}
	if len(s.Notices) > 0 {
		if notices, err = json.Marshal(s.Notices); err != nil {
			return squirrel.InsertBuilder{}, fmt.Errorf("failed to encode notices: %w", err)
		}
	}

	var fileName, mimeType *string
	var fileSize *int64
	if s.File != nil {
		fileName, mimeType, fileSize = &s.File.Name, &s.File.MimeType, &s.File.Size
	}

	return squirrel.Insert("widget_sessions").
		Columns(sessionColumns...).
		Values(s.WidgetID, s.Generation, string(s.State), fileName, fileSize, mimeType,
			fields, displayValues, notices, s.DocumentID, s.LastError, s.UpdatedAt).
		Suffix(`ON CONFLICT (widget_id) DO UPDATE SET
			generation = EXCLUDED.generation,
			state = EXCLUDED.state,
			file_name = EXCLUDED.file_name,
			file_size = EXCLUDED.file_size,
			file_mime_type = EXCLUDED.file_mime_type,
			fields = EXCLUDED.fields,
			display_values = EXCLUDED.display_values,
			notices = EXCLUDED.notices,
			document_id = EXCLUDED.document_id,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
		WHERE widget_sessions.updated_at <= EXCLUDED.updated_at`).
		PlaceholderFormat(squirrel.Dollar), nil
}

func (r *SessionRepository) Get(ctx context.Context, widgetID uuid.UUID) (*models.UploadSession, error) {
	query := squirrel.Select(sessionColumns...).
		From("widget_sessions").
		Where(squirrel.Eq{"widget_id": widgetID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var (
		s                              models.UploadSession
		state                          string
		fileName, mimeType             *string
		fileSize                       *int64
		fields, displayValues, notices []byte
		documentID, lastError          *string
	)
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&s.WidgetID, &s.Generation, &state, &fileName, &fileSize, &mimeType,
		&fields, &displayValues, &notices, &documentID, &lastError, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	s.State = models.WidgetState(state)
	if fileName != nil {
		s.File = &models.FileRef{Name: *fileName}
		if mimeType != nil {
			s.File.MimeType = *mimeType
		}
		if fileSize != nil {
			s.File.Size = *fileSize
		}
	}
	if err := json.Unmarshal(fields, &s.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	if len(displayValues) > 0 {
		s.DisplayValues = &models.DisplayValues{}
		if err := json.Unmarshal(displayValues, s.DisplayValues); err != nil {
			return nil, fmt.Errorf("failed to decode display values: %w", err)
		}
	}
	if len(notices) > 0 {
		if err := json.Unmarshal(notices, &s.Notices); err != nil {
			return nil, fmt.Errorf("failed to decode notices: %w", err)
		}
	}
	if documentID != nil {
		s.DocumentID = *documentID
	}
	if lastError != nil {
		s.LastError = *lastError
	}

	return &s, nil
}
