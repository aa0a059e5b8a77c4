package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	FieldName          = "Name"
	FieldAddress       = "Address"
	FieldAccountNumber = "Account number"
	FieldPeriod        = "Period"
)

// FieldNames is the fixed, ordered identity set of tracked fields.
var FieldNames = []string{FieldName, FieldAddress, FieldAccountNumber, FieldPeriod}

type FieldCheck struct {
	Name      string `json:"name"`
	Required  bool   `json:"required"`
	Validated bool   `json:"validated"`
}

// NewFieldChecks returns the four tracked fields, all required and unvalidated.
func NewFieldChecks() []FieldCheck {
	fields := make([]FieldCheck, len(FieldNames))
	for i, name := range FieldNames {
		fields[i] = FieldCheck{Name: name, Required: true}
	}
	return fields
}

type FileRef struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mime_type"`
	Fingerprint string `json:"fingerprint,omitempty"`
	PageCount   int    `json:"page_count,omitempty"`
}

type DisplayValues struct {
	AccountMasked string `json:"account_masked,omitempty"`
	PeriodLabel   string `json:"period_label,omitempty"`
}

type VerificationDetails struct {
	Source      string `json:"source,omitempty"`
	GeneratedOn string `json:"generated_on,omitempty"`
}

// UploadSession is the aggregate owned by one widget instance.
type UploadSession struct {
	WidgetID      uuid.UUID            `db:"widget_id"`
	Generation    uint64               `db:"generation"`
	State         WidgetState          `db:"state"`
	File          *FileRef             `db:"file"`
	Fields        []FieldCheck         `db:"fields"`
	DisplayValues *DisplayValues       `db:"display_values"`
	DocumentID    string               `db:"document_id"`
	ProgressTick  int                  `db:"progress_tick"`
	Notices       []string             `db:"notices"`
	Verification  *VerificationDetails `db:"verification"`
	LastError     string               `db:"last_error"`
	UpdatedAt     time.Time            `db:"updated_at"`
}

func NewUploadSession(widgetID uuid.UUID) *UploadSession {
	return &UploadSession{
		WidgetID:  widgetID,
		State:     StateIdle,
		Fields:    NewFieldChecks(),
		UpdatedAt: time.Now(),
	}
}

// Clone returns a deep copy safe to hand to subscribers.
func (s *UploadSession) Clone() UploadSession {
	out := *s
	if s.File != nil {
		f := *s.File
		out.File = &f
	}
	out.Fields = append([]FieldCheck(nil), s.Fields...)
	if s.DisplayValues != nil {
		dv := *s.DisplayValues
		out.DisplayValues = &dv
	}
	if s.Notices != nil {
		out.Notices = append([]string(nil), s.Notices...)
	}
	if s.Verification != nil {
		v := *s.Verification
		out.Verification = &v
	}
	return out
}

func (s UploadSession) ProgressMessage() string {
	return s.State.ProgressMessage(s.ProgressTick)
}

// InvalidFields lists the names of fields that did not validate.
func (s UploadSession) InvalidFields() []string {
	var names []string
	for _, f := range s.Fields {
		if !f.Validated {
			names = append(names, f.Name)
		}
	}
	return names
}
