package service

import (
	"fmt"
	"strings"
	"time"

	"doc-verifier/internal/models"
)

const accountMask = "****"

// periodLayouts are tried in order for each side of a period range.
var periodLayouts = []string{
	"2006/1/2",
	"2006.1.2",
	"1/2/2006",
}

// Reconciled is the normalized view of one extraction payload.
type Reconciled struct {
	Fields        []models.FieldCheck
	DisplayValues models.DisplayValues
	Notices       []string
}

// Reconcile maps a raw extraction payload onto the four field badges and the
// display strings shown on the review screen. It has no side effects; a nil
// payload yields all fields unvalidated.
func Reconcile(r *models.ExtractionResult, periodHint string) Reconciled {
	if r == nil {
		r = &models.ExtractionResult{}
	}

	period := strings.TrimSpace(r.Period)
	signals := map[string]bool{
		models.FieldName:          r.Name,
		models.FieldAddress:       r.Address,
		models.FieldAccountNumber: r.AccountNumber,
		models.FieldPeriod:        period != "",
	}

	fields := models.NewFieldChecks()
	for i := range fields {
		fields[i].Validated = signals[fields[i].Name]
	}

	out := Reconciled{Fields: fields}
	out.DisplayValues.AccountMasked = MaskAccount(r.AccountNumberValue)
	if period != "" {
		out.DisplayValues.PeriodLabel = FormatPeriod(period)
	}
	out.Notices = reviewNotices(signals, periodHint)

	return out
}

// MaskAccount renders the first account value as ****<digits>. An empty or
// missing value yields "".
func MaskAccount(values []string) string {
	if len(values) == 0 {
		return ""
	}
	tail := strings.TrimSpace(values[0])
	if tail == "" {
		return ""
	}
	return accountMask + tail
}

// FormatPeriod turns "2024/01/01-2024/06/30" into "Jan 1–Jun 30, 2024", or
// "Dec 1, 2024–Jan 15, 2025" when the range crosses a year. Anything that does
// not split into exactly two parsable dates is returned unchanged.
func FormatPeriod(period string) string {
	parts := strings.Split(period, "-")
	if len(parts) != 2 {
		return period
	}

	start, ok := parsePeriodDate(parts[0])
	if !ok {
		return period
	}
	end, ok := parsePeriodDate(parts[1])
	if !ok {
		return period
	}

	if start.Year() == end.Year() {
		return fmt.Sprintf("%s–%s", start.Format("Jan 2"), end.Format("Jan 2, 2006"))
	}
	return fmt.Sprintf("%s–%s", start.Format("Jan 2, 2006"), end.Format("Jan 2, 2006"))
}

func parsePeriodDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func reviewNotices(signals map[string]bool, periodHint string) []string {
	var notices []string
	if !signals[models.FieldPeriod] {
		if periodHint == "" {
			notices = append(notices, "Statement period is missing.")
		} else {
			notices = append(notices, fmt.Sprintf("Statement period is missing. Please upload a statement covering the %s.", periodHint))
		}
	}
	if !signals[models.FieldName] && !signals[models.FieldAddress] {
		notices = append(notices, "Name and address is missing.")
	}
	return notices
}
