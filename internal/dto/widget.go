package dto

import (
	"time"

	"doc-verifier/internal/models"
)

type FieldResponse struct {
	Name      string `json:"name"`
	Required  bool   `json:"required"`
	Validated bool   `json:"validated"`
}

type FileResponse struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mime_type"`
	Fingerprint string `json:"fingerprint,omitempty"`
	PageCount   int    `json:"page_count,omitempty"`
}

type VerificationResponse struct {
	Source      string `json:"source,omitempty"`
	GeneratedOn string `json:"generated_on,omitempty"`
}

// WidgetResponse is the view of a widget snapshot rendered by the embedding
// page.
type WidgetResponse struct {
	ID              string                `json:"id"`
	State           string                `json:"state"`
	ProgressMessage string                `json:"progress_message,omitempty"`
	ProgressPercent int                   `json:"progress_percent"`
	File            *FileResponse         `json:"file,omitempty"`
	Fields          []FieldResponse       `json:"fields"`
	InvalidFields   []string              `json:"invalid_fields,omitempty"`
	AccountMasked   string                `json:"account_masked,omitempty"`
	PeriodLabel     string                `json:"period_label,omitempty"`
	DocumentID      string                `json:"document_id,omitempty"`
	Notices         []string              `json:"notices,omitempty"`
	Verification    *VerificationResponse `json:"verification,omitempty"`
	Error           string                `json:"error,omitempty"`
	UpdatedAt       string                `json:"updated_at"`
}

func NewWidgetResponse(s models.UploadSession) *WidgetResponse {
	resp := &WidgetResponse{
		ID:              s.WidgetID.String(),
		State:           string(s.State),
		ProgressMessage: s.ProgressMessage(),
		ProgressPercent: s.State.ProgressPercent(),
		Fields:          make([]FieldResponse, len(s.Fields)),
		DocumentID:      s.DocumentID,
		Notices:         s.Notices,
		Error:           s.LastError,
		UpdatedAt:       s.UpdatedAt.Format(time.RFC3339),
	}
	for i, f := range s.Fields {
		resp.Fields[i] = FieldResponse{Name: f.Name, Required: f.Required, Validated: f.Validated}
	}
	if s.State == models.StateReview {
		resp.InvalidFields = s.InvalidFields()
	}
	if s.File != nil {
		resp.File = &FileResponse{
			Name:        s.File.Name,
			Size:        s.File.Size,
			MimeType:    s.File.MimeType,
			Fingerprint: s.File.Fingerprint,
			PageCount:   s.File.PageCount,
		}
	}
	if s.DisplayValues != nil {
		resp.AccountMasked = s.DisplayValues.AccountMasked
		resp.PeriodLabel = s.DisplayValues.PeriodLabel
	}
	if s.Verification != nil {
		resp.Verification = &VerificationResponse{
			Source:      s.Verification.Source,
			GeneratedOn: s.Verification.GeneratedOn,
		}
	}
	return resp
}

// ConfigResponse carries the presentation settings of the widget.
type ConfigResponse struct {
	AcceptedFileTypes []string `json:"accepted_file_types"`
	MaxFileSizeMB     int      `json:"max_file_size_mb"`
	DocumentType      string   `json:"document_type"`
	PeriodRange       string   `json:"period_range"`
	Fields            []string `json:"fields"`
}
