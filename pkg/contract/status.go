package contract

import "strings"

// Status is the normalized outcome of a stage invocation. Every external
// contract literal is mapped onto this closed set; decision logic never
// touches raw strings.
type Status int

const (
	// StatusError is the zero value so an unmapped or missing literal never
	// reads as a success.
	StatusError Status = iota
	StatusSuccess
	StatusSkipped
	StatusNoChanges
	StatusAlreadyRunning
	StatusSkippedRecent
	StatusTimeout
)

// String returns the wire literal for the status.
func (s Status) String() string {
	return [...]string{
		"error",
		"success",
		"skipped",
		"no_changes",
		"already_running",
		"skipped_recent",
		"timeout",
	}[s]
}

// statusLiterals maps every literal the stage executors emit to the enum.
// Legacy stage scripts report "ok" instead of "success".
var statusLiterals = map[string]Status{
	"success":         StatusSuccess,
	"ok":              StatusSuccess,
	"skipped":         StatusSkipped,
	"no_changes":      StatusNoChanges,
	"already_running": StatusAlreadyRunning,
	"skipped_recent":  StatusSkippedRecent,
	"timeout":         StatusTimeout,
	"error":           StatusError,
}

// ParseStatus maps an external status literal onto the enum. Unknown
// literals are treated as error.
func ParseStatus(raw string) (Status, bool) {
	s, ok := statusLiterals[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return StatusError, false
	}
	return s, true
}

// PassThrough reports whether the status is a non-error terminal outcome
// that still permits advancing to the next stage: the stage did not do new
// work, but nothing is wrong (expected idempotency outcomes).
func (s Status) PassThrough() bool {
	switch s {
	case StatusSkipped, StatusNoChanges, StatusAlreadyRunning, StatusSkippedRecent:
		return true
	}
	return false
}

// Advances reports whether a stage ending with this status lets the
// pipeline move on to the next stage.
func (s Status) Advances() bool {
	return s == StatusSuccess || s.PassThrough()
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown literals
// normalize to error rather than failing the decode.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, _ := ParseStatus(string(text))
	*s = parsed
	return nil
}
