package models

type WidgetState string

const (
	StateIdle          WidgetState = "idle"
	StateUploading     WidgetState = "uploading"
	StateProcessing    WidgetState = "processing"
	StateValidating    WidgetState = "validating"
	StateReview        WidgetState = "review"
	StateVerified      WidgetState = "verified"
	StateCommitting    WidgetState = "committing"
	StateSuccess       WidgetState = "success"
	StateError         WidgetState = "error"
	StateUnprocessable WidgetState = "unprocessable"
)

// InProgress reports whether the state is one of the cosmetic progress states
// shown while the extract call is outstanding.
func (s WidgetState) InProgress() bool {
	return s == StateUploading || s == StateProcessing || s == StateValidating
}

// Retryable reports whether a user-initiated retry is permitted from s.
func (s WidgetState) Retryable() bool {
	switch s {
	case StateReview, StateVerified, StateError, StateUnprocessable:
		return true
	}
	return false
}

func (s WidgetState) Terminal() bool {
	return s == StateSuccess
}

// ProgressPercent is the fixed progress bar value for each progress state.
func (s WidgetState) ProgressPercent() int {
	switch s {
	case StateUploading:
		return 30
	case StateProcessing:
		return 60
	case StateValidating:
		return 90
	}
	return 0
}

var progressMessages = map[WidgetState][2]string{
	StateUploading:  {"Uploading document…", "Validating data…"},
	StateProcessing: {"Extracting fields…", "Processing document…"},
	StateValidating: {"Analyzing content…", "Finalizing validation…"},
}

// ProgressMessage returns the loader message for the given tick. States
// without a progress message return an empty string.
func (s WidgetState) ProgressMessage(tick int) string {
	msgs, ok := progressMessages[s]
	if !ok {
		return ""
	}
	if tick < 0 {
		tick = -tick
	}
	return msgs[tick%len(msgs)]
}
