package engine

import (
	"context"
	"fmt"
)

// Session is an interactive F# evaluation session. One session holds the
// accumulated top-level bindings of everything evaluated through it, so a
// value bound by one Eval is visible to the next.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use; callers
//     may overlap introspection calls with a running Eval.
//   - Context: blocking methods must honor cancellation. Eval reports a
//     cancelled evaluation as EvalResult.Canceled rather than ctx.Err() when
//     the service confirmed the interrupt.
//   - Errors: evaluation failures return *ScriptError where positions are
//     known; callers use errors.Is with ErrEvalFailed. A closed session
//     returns ErrSessionClosed from every method.
//   - Positions: lines 1-based, columns 0-based (compiler convention).
type Session interface {
	// Eval compiles and runs a code submission, returning its result value
	// (nil for unit-typed submissions) and any diagnostics produced. A
	// failed submission returns a non-nil result carrying its diagnostics
	// together with the error.
	Eval(ctx context.Context, code string) (*EvalResult, error)

	// Check type-checks a submission without evaluating it.
	Check(ctx context.Context, code string) ([]Diagnostic, error)

	// Declarations lists completion candidates at a position.
	Declarations(ctx context.Context, code string, line, column int) ([]Declaration, error)

	// Tooltip computes hover documentation for the dotted identifier chain
	// in names (e.g. ["List", "map"]) on the given line.
	Tooltip(ctx context.Context, code string, line int, names []string) (*Tooltip, error)

	// ValueInfos lists the values currently bound in the session.
	ValueInfos(ctx context.Context) ([]BoundValue, error)

	// TryGetValue looks up one bound value by name. The boolean reports
	// whether the name is bound; an error means the lookup itself failed.
	TryGetValue(ctx context.Context, name string) (*BoundValue, bool, error)

	// SetValue binds a host-provided value into the session under name.
	SetValue(ctx context.Context, name, typeName, value string) error

	// Close tears the session down. Further calls return ErrSessionClosed.
	Close() error
}

// Factory creates the session on first use. The kernel calls it lazily so
// hosts that never submit code never pay for a compiler service process.
type Factory func(ctx context.Context) (Session, error)

// OutputStream identifies which console stream a piece of interleaved
// output was written to.
type OutputStream int

const (
	// StreamStdout is the service's standard output.
	StreamStdout OutputStream = iota
	// StreamStderr is the service's standard error.
	StreamStderr
)

// String returns "stdout" or "stderr".
func (s OutputStream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// OutputHandler receives console output produced while an evaluation runs.
// Handlers are called from the session's read loop and must not block.
type OutputHandler func(stream OutputStream, text string)

// OutputSource is implemented by sessions that surface interleaved console
// output during Eval. Callers type-assert for it; sessions without live
// output simply never report any.
type OutputSource interface {
	SetOutputHandler(h OutputHandler)
}

// EvalResult is the outcome of one Eval call that reached the service.
type EvalResult struct {
	// Value is the submission's result value, nil when the submission was
	// unit-typed (declarations, side-effecting statements).
	Value *ResultValue

	// Diagnostics produced while compiling the submission. Warnings may be
	// present even on success.
	Diagnostics []Diagnostic

	// Canceled reports that the evaluation was interrupted before
	// completing. Value is nil and Diagnostics may be partial.
	Canceled bool
}

// ResultValue is an evaluated value as rendered by the service.
type ResultValue struct {
	// Name is the binding the value was assigned to; "it" for bare
	// expressions.
	Name string

	// TypeName is the value's formatted F# type.
	TypeName string

	// DisplayValue is the service's structured-print rendering.
	DisplayValue string
}

// Severity classifies a compiler diagnostic.
type Severity string

const (
	SeverityHidden  Severity = "hidden"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a compiler message in the service's coordinate system:
// 1-based lines, 0-based columns, inclusive start / exclusive end.
type Diagnostic struct {
	Line        int      `json:"line"`
	Column      int      `json:"column"`
	EndLine     int      `json:"endLine"`
	EndColumn   int      `json:"endColumn"`
	Severity    Severity `json:"severity"`
	ErrorNumber int      `json:"errorNumber"`
	Message     string   `json:"message"`
}

// Code renders the diagnostic's error number in the compiler's display
// form, e.g. "FS0039". Diagnostics without a number render as "".
func (d Diagnostic) Code() string {
	if d.ErrorNumber <= 0 {
		return ""
	}
	return fmt.Sprintf("FS%04d", d.ErrorNumber)
}

// Glyph is the service's symbol-kind vocabulary for declarations.
type Glyph string

const (
	GlyphClass           Glyph = "Class"
	GlyphConstant        Glyph = "Constant"
	GlyphDelegate        Glyph = "Delegate"
	GlyphEnum            Glyph = "Enum"
	GlyphEnumMember      Glyph = "EnumMember"
	GlyphEvent           Glyph = "Event"
	GlyphException       Glyph = "Exception"
	GlyphField           Glyph = "Field"
	GlyphInterface       Glyph = "Interface"
	GlyphMethod          Glyph = "Method"
	GlyphOverridenMethod Glyph = "OverridenMethod"
	GlyphModule          Glyph = "Module"
	GlyphNameSpace       Glyph = "NameSpace"
	GlyphProperty        Glyph = "Property"
	GlyphStruct          Glyph = "Struct"
	GlyphTypedef         Glyph = "Typedef"
	GlyphType            Glyph = "Type"
	GlyphUnion           Glyph = "Union"
	GlyphVariable        Glyph = "Variable"
	GlyphExtensionMethod Glyph = "ExtensionMethod"
	GlyphError           Glyph = "Error"
)

// Declaration is one completion candidate.
type Declaration struct {
	DisplayText   string `json:"displayText"`
	Glyph         Glyph  `json:"glyph"`
	FilterText    string `json:"filterText,omitempty"`
	SortText      string `json:"sortText,omitempty"`
	InsertText    string `json:"insertText,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// Tooltip is hover documentation for an identifier.
type Tooltip struct {
	// Text is the signature line, e.g. "val map: ('T -> 'U) -> 'T list -> 'U list".
	Text string `json:"text"`

	// Documentation is the symbol's doc text, possibly empty.
	Documentation string `json:"documentation,omitempty"`
}

// BoundValue is one top-level value bound in the session.
type BoundValue struct {
	Name         string `json:"name"`
	TypeName     string `json:"typeName"`
	DisplayValue string `json:"displayValue"`
}

// State tracks a session's lifecycle.
type State int

const (
	// StateStarting means the service process is launching.
	StateStarting State = iota
	// StateReady means the session accepts calls.
	StateReady
	// StateClosed means Close ran; all calls fail with ErrSessionClosed.
	StateClosed
)

// String returns the lifecycle state's name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
