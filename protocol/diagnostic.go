package protocol

import (
	"encoding/json"
	"fmt"
)

// DiagnosticSeverity classifies a diagnostic. The wire form is the lower
// case name used by notebook hosts.
type DiagnosticSeverity int

const (
	// SeverityHidden marks diagnostics the host should not surface.
	SeverityHidden DiagnosticSeverity = iota
	// SeverityInfo is an informational message.
	SeverityInfo
	// SeverityWarning is a warning that does not fail a submission.
	SeverityWarning
	// SeverityError is a compilation or runtime error.
	SeverityError
)

// String returns the wire name of the severity.
func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityHidden:
		return "hidden"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalJSON encodes the severity as its wire name.
func (s DiagnosticSeverity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its wire name.
func (s *DiagnosticSeverity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "hidden":
		*s = SeverityHidden
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown diagnostic severity %q", name)
	}
	return nil
}

// Diagnostic is a single compiler message positioned inside the submitted
// code. Positions follow the package convention (zero-based, half-open).
type Diagnostic struct {
	Span     LinePositionSpan   `json:"linePositionSpan"`
	Severity DiagnosticSeverity `json:"severity"`
	Code     string             `json:"code,omitempty"`
	Message  string             `json:"message"`
}

// String renders the diagnostic the way hosts display it in plain text,
// e.g. "(1,3)-(1,7): error FS0039: The value 'x' is not defined".
func (d Diagnostic) String() string {
	if d.Code != "" {
		return fmt.Sprintf("%s: %s %s: %s", d.Span, d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Severity, d.Message)
}
