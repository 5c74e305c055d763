package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Command is the closed set of host commands the kernel understands.
// Concrete command types implement the unexported isCommand marker.
type Command interface{ isCommand() }

// Command type discriminators as they appear on the wire.
const (
	CommandTypeSubmitCode         = "SubmitCode"
	CommandTypeRequestCompletions = "RequestCompletions"
	CommandTypeRequestHoverText   = "RequestHoverText"
	CommandTypeRequestDiagnostics = "RequestDiagnostics"
	CommandTypeRequestValueInfos  = "RequestValueInfos"
	CommandTypeRequestValue       = "RequestValue"
	CommandTypeSendValue          = "SendValue"
	CommandTypeQuit               = "Quit"
)

// SubmissionType selects how SubmitCode is processed.
type SubmissionType string

const (
	// SubmissionTypeRun evaluates the code.
	SubmissionTypeRun SubmissionType = "run"
	// SubmissionTypeDiagnose type-checks the code without evaluating it.
	SubmissionTypeDiagnose SubmissionType = "diagnose"
)

// SubmitCode asks the kernel to evaluate (or, for SubmissionTypeDiagnose,
// only check) a block of code.
type SubmitCode struct {
	Code           string         `json:"code"`
	SubmissionType SubmissionType `json:"submissionType,omitempty"`
}

func (SubmitCode) isCommand() {}

// RequestCompletions asks for completion proposals at a position.
type RequestCompletions struct {
	Code         string       `json:"code"`
	LinePosition LinePosition `json:"linePosition"`
}

func (RequestCompletions) isCommand() {}

// RequestHoverText asks for hover documentation at a position.
type RequestHoverText struct {
	Code         string       `json:"code"`
	LinePosition LinePosition `json:"linePosition"`
}

func (RequestHoverText) isCommand() {}

// RequestDiagnostics asks for a full set of diagnostics for the code
// without evaluating it.
type RequestDiagnostics struct {
	Code string `json:"code"`
}

func (RequestDiagnostics) isCommand() {}

// RequestValueInfos asks for the names and renderings of all values bound
// in the session.
type RequestValueInfos struct{}

func (RequestValueInfos) isCommand() {}

// RequestValue asks for one bound value formatted with the given mime type.
// An empty MimeType requests text/plain.
type RequestValue struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
}

func (RequestValue) isCommand() {}

// SendValue binds a host-provided value into the session under Name.
type SendValue struct {
	Name           string         `json:"name"`
	FormattedValue FormattedValue `json:"formattedValue"`
	TypeName       string         `json:"typeName,omitempty"`
}

func (SendValue) isCommand() {}

// Quit tells the kernel to tear down its evaluation session and stop
// accepting commands.
type Quit struct{}

func (Quit) isCommand() {}

// CommandTypeOf returns the wire discriminator for a command value.
func CommandTypeOf(c Command) string {
	switch c.(type) {
	case SubmitCode, *SubmitCode:
		return CommandTypeSubmitCode
	case RequestCompletions, *RequestCompletions:
		return CommandTypeRequestCompletions
	case RequestHoverText, *RequestHoverText:
		return CommandTypeRequestHoverText
	case RequestDiagnostics, *RequestDiagnostics:
		return CommandTypeRequestDiagnostics
	case RequestValueInfos, *RequestValueInfos:
		return CommandTypeRequestValueInfos
	case RequestValue, *RequestValue:
		return CommandTypeRequestValue
	case SendValue, *SendValue:
		return CommandTypeSendValue
	case Quit, *Quit:
		return CommandTypeQuit
	default:
		return ""
	}
}

// CommandEnvelope pairs a command with its routing token. Events published
// for the command echo the same token so the host can correlate them.
type CommandEnvelope struct {
	Token       string
	CommandType string
	Command     Command
}

// NewCommandEnvelope wraps a command with a fresh token.
func NewCommandEnvelope(c Command) CommandEnvelope {
	return CommandEnvelope{
		Token:       uuid.NewString(),
		CommandType: CommandTypeOf(c),
		Command:     c,
	}
}

type commandEnvelopeJSON struct {
	Token       string          `json:"token"`
	CommandType string          `json:"commandType"`
	Command     json.RawMessage `json:"command"`
}

// MarshalJSON encodes the envelope with the commandType discriminator.
func (e CommandEnvelope) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(e.Command)
	if err != nil {
		return nil, err
	}
	return json.Marshal(commandEnvelopeJSON{
		Token:       e.Token,
		CommandType: e.CommandType,
		Command:     body,
	})
}

// UnmarshalJSON decodes the envelope, dispatching on commandType to pick
// the concrete command type. Unknown discriminators are an error.
func (e *CommandEnvelope) UnmarshalJSON(data []byte) error {
	var raw commandEnvelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cmd, err := unmarshalCommand(raw.CommandType, raw.Command)
	if err != nil {
		return err
	}

	e.Token = raw.Token
	e.CommandType = raw.CommandType
	e.Command = cmd

	return nil
}

func unmarshalCommand(commandType string, body json.RawMessage) (Command, error) {
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}

	var (
		cmd Command
		err error
	)

	switch commandType {
	case CommandTypeSubmitCode:
		var c SubmitCode
		err = json.Unmarshal(body, &c)
		cmd = c
	case CommandTypeRequestCompletions:
		var c RequestCompletions
		err = json.Unmarshal(body, &c)
		cmd = c
	case CommandTypeRequestHoverText:
		var c RequestHoverText
		err = json.Unmarshal(body, &c)
		cmd = c
	case CommandTypeRequestDiagnostics:
		var c RequestDiagnostics
		err = json.Unmarshal(body, &c)
		cmd = c
	case CommandTypeRequestValueInfos:
		var c RequestValueInfos
		err = json.Unmarshal(body, &c)
		cmd = c
	case CommandTypeRequestValue:
		var c RequestValue
		err = json.Unmarshal(body, &c)
		cmd = c
	case CommandTypeSendValue:
		var c SendValue
		err = json.Unmarshal(body, &c)
		cmd = c
	case CommandTypeQuit:
		var c Quit
		err = json.Unmarshal(body, &c)
		cmd = c
	default:
		return nil, fmt.Errorf("unknown command type %q", commandType)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", commandType, err)
	}

	return cmd, nil
}
