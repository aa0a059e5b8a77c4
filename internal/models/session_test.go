package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func snapshotOf(s *UploadSession) UploadSession {
	return s.Clone()
}

func TestSnapshotValueMethods(t *testing.T) {
	s := NewUploadSession(uuid.New())
	s.State = StateProcessing
	s.ProgressTick = 3
	s.Fields[1].Validated = true

	assert.Equal(t, "Processing document…", snapshotOf(s).ProgressMessage())
	assert.Equal(t, []string{FieldName, FieldAccountNumber, FieldPeriod}, snapshotOf(s).InvalidFields())
}

func TestCloneIsDeep(t *testing.T) {
	s := NewUploadSession(uuid.New())
	s.File = &FileRef{Name: "a.pdf"}
	s.Notices = []string{"n"}

	c := s.Clone()
	c.File.Name = "b.pdf"
	c.Notices[0] = "changed"
	c.Fields[0].Validated = true

	assert.Equal(t, "a.pdf", s.File.Name)
	assert.Equal(t, []string{"n"}, s.Notices)
	assert.False(t, s.Fields[0].Validated)
}
