package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event is the closed set of events the kernel publishes back to the host.
// Concrete event types implement the unexported isEvent marker.
type Event interface{ isEvent() }

// Event type discriminators as they appear on the wire.
const (
	EventTypeCodeSubmissionReceived = "CodeSubmissionReceived"
	EventTypeCommandSucceeded       = "CommandSucceeded"
	EventTypeCommandFailed          = "CommandFailed"
	EventTypeCommandCancelled       = "CommandCancelled"
	EventTypeReturnValueProduced    = "ReturnValueProduced"
	EventTypeStandardOutputProduced = "StandardOutputValueProduced"
	EventTypeStandardErrorProduced  = "StandardErrorValueProduced"
	EventTypeCompletionsProduced    = "CompletionsProduced"
	EventTypeHoverTextProduced      = "HoverTextProduced"
	EventTypeDiagnosticsProduced    = "DiagnosticsProduced"
	EventTypeValueInfosProduced     = "ValueInfosProduced"
	EventTypeValueProduced          = "ValueProduced"
	EventTypePackageAdded           = "PackageAdded"
	EventTypeKernelExtensionLoaded  = "KernelExtensionLoaded"
)

// CodeSubmissionReceived acknowledges that a SubmitCode command was
// accepted for processing.
type CodeSubmissionReceived struct {
	Code string `json:"code"`
}

func (CodeSubmissionReceived) isEvent() {}

// CommandSucceeded terminates a command's event stream on success.
type CommandSucceeded struct{}

func (CommandSucceeded) isEvent() {}

// CommandFailed terminates a command's event stream on failure.
type CommandFailed struct {
	Message string `json:"message"`
}

func (CommandFailed) isEvent() {}

// CommandCancelled terminates a command's event stream when the command
// was stopped before completing. It is distinct from CommandFailed so the
// host can tell interruption apart from errors.
type CommandCancelled struct{}

func (CommandCancelled) isEvent() {}

// ReturnValueProduced carries the rendering of a submission's return value.
type ReturnValueProduced struct {
	FormattedValues []FormattedValue `json:"formattedValues"`
}

func (ReturnValueProduced) isEvent() {}

// StandardOutputValueProduced carries text the evaluation wrote to stdout.
type StandardOutputValueProduced struct {
	FormattedValues []FormattedValue `json:"formattedValues"`
}

func (StandardOutputValueProduced) isEvent() {}

// StandardErrorValueProduced carries text the evaluation wrote to stderr.
type StandardErrorValueProduced struct {
	FormattedValues []FormattedValue `json:"formattedValues"`
}

func (StandardErrorValueProduced) isEvent() {}

// CompletionsProduced answers a RequestCompletions command. Span, when
// non-nil, is the range of source text the proposals would replace.
type CompletionsProduced struct {
	Completions []CompletionItem  `json:"completions"`
	Span        *LinePositionSpan `json:"linePositionSpan,omitempty"`
}

func (CompletionsProduced) isEvent() {}

// HoverTextProduced answers a RequestHoverText command.
type HoverTextProduced struct {
	Content []FormattedValue  `json:"content"`
	Span    *LinePositionSpan `json:"linePositionSpan,omitempty"`
}

func (HoverTextProduced) isEvent() {}

// DiagnosticsProduced answers a RequestDiagnostics command and also
// accompanies failed submissions.
type DiagnosticsProduced struct {
	Diagnostics          []Diagnostic     `json:"diagnostics"`
	FormattedDiagnostics []FormattedValue `json:"formattedDiagnostics,omitempty"`
}

func (DiagnosticsProduced) isEvent() {}

// ValueInfosProduced answers a RequestValueInfos command.
type ValueInfosProduced struct {
	ValueInfos []ValueInfo `json:"valueInfos"`
}

func (ValueInfosProduced) isEvent() {}

// ValueProduced answers a RequestValue command.
type ValueProduced struct {
	Name           string         `json:"name"`
	FormattedValue FormattedValue `json:"formattedValue"`
}

func (ValueProduced) isEvent() {}

// PackageAdded reports a package reference that a restore made available
// to the session.
type PackageAdded struct {
	PackageReference PackageReference `json:"packageReference"`
}

func (PackageAdded) isEvent() {}

// KernelExtensionLoaded reports that an extension found during restore was
// loaded into the kernel.
type KernelExtensionLoaded struct {
	Name      string `json:"name"`
	Directory string `json:"directory"`
}

func (KernelExtensionLoaded) isEvent() {}

// EventTypeOf returns the wire discriminator for an event value.
func EventTypeOf(ev Event) string {
	switch ev.(type) {
	case CodeSubmissionReceived, *CodeSubmissionReceived:
		return EventTypeCodeSubmissionReceived
	case CommandSucceeded, *CommandSucceeded:
		return EventTypeCommandSucceeded
	case CommandFailed, *CommandFailed:
		return EventTypeCommandFailed
	case CommandCancelled, *CommandCancelled:
		return EventTypeCommandCancelled
	case ReturnValueProduced, *ReturnValueProduced:
		return EventTypeReturnValueProduced
	case StandardOutputValueProduced, *StandardOutputValueProduced:
		return EventTypeStandardOutputProduced
	case StandardErrorValueProduced, *StandardErrorValueProduced:
		return EventTypeStandardErrorProduced
	case CompletionsProduced, *CompletionsProduced:
		return EventTypeCompletionsProduced
	case HoverTextProduced, *HoverTextProduced:
		return EventTypeHoverTextProduced
	case DiagnosticsProduced, *DiagnosticsProduced:
		return EventTypeDiagnosticsProduced
	case ValueInfosProduced, *ValueInfosProduced:
		return EventTypeValueInfosProduced
	case ValueProduced, *ValueProduced:
		return EventTypeValueProduced
	case PackageAdded, *PackageAdded:
		return EventTypePackageAdded
	case KernelExtensionLoaded, *KernelExtensionLoaded:
		return EventTypeKernelExtensionLoaded
	default:
		return ""
	}
}

// EventEnvelope pairs an event with the token of the command that caused
// it. Command, when non-nil, echoes the originating command so hosts that
// route by payload rather than token can still correlate.
type EventEnvelope struct {
	Token     string
	EventType string
	Event     Event
	Command   *CommandEnvelope
}

// NewEventEnvelope wraps an event, stamping it with the causing command's
// token. Events with no causing command, like a package resolution kicked
// off through a capability interface, get a fresh token.
func NewEventEnvelope(ev Event, cause *CommandEnvelope) EventEnvelope {
	env := EventEnvelope{
		EventType: EventTypeOf(ev),
		Event:     ev,
		Command:   cause,
	}
	if cause != nil {
		env.Token = cause.Token
	} else {
		env.Token = uuid.NewString()
	}
	return env
}

type eventEnvelopeJSON struct {
	Token     string           `json:"token"`
	EventType string           `json:"eventType"`
	Event     json.RawMessage  `json:"event"`
	Command   *CommandEnvelope `json:"command,omitempty"`
}

// MarshalJSON encodes the envelope with the eventType discriminator.
func (e EventEnvelope) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelopeJSON{
		Token:     e.Token,
		EventType: e.EventType,
		Event:     body,
		Command:   e.Command,
	})
}

// UnmarshalJSON decodes the envelope, dispatching on eventType to pick the
// concrete event type. Unknown discriminators are an error.
func (e *EventEnvelope) UnmarshalJSON(data []byte) error {
	var raw eventEnvelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ev, err := unmarshalEvent(raw.EventType, raw.Event)
	if err != nil {
		return err
	}

	e.Token = raw.Token
	e.EventType = raw.EventType
	e.Event = ev
	e.Command = raw.Command

	return nil
}

func unmarshalEvent(eventType string, body json.RawMessage) (Event, error) {
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}

	var (
		ev  Event
		err error
	)

	switch eventType {
	case EventTypeCodeSubmissionReceived:
		var v CodeSubmissionReceived
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeCommandSucceeded:
		var v CommandSucceeded
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeCommandFailed:
		var v CommandFailed
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeCommandCancelled:
		var v CommandCancelled
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeReturnValueProduced:
		var v ReturnValueProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeStandardOutputProduced:
		var v StandardOutputValueProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeStandardErrorProduced:
		var v StandardErrorValueProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeCompletionsProduced:
		var v CompletionsProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeHoverTextProduced:
		var v HoverTextProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeDiagnosticsProduced:
		var v DiagnosticsProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeValueInfosProduced:
		var v ValueInfosProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeValueProduced:
		var v ValueProduced
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypePackageAdded:
		var v PackageAdded
		err = json.Unmarshal(body, &v)
		ev = v
	case EventTypeKernelExtensionLoaded:
		var v KernelExtensionLoaded
		err = json.Unmarshal(body, &v)
		ev = v
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}

	return ev, nil
}
