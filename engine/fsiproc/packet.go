package fsiproc

import (
	"encoding/json"

	"github.com/krauthaufen/interactive/engine"
)

// Packet types.
const (
	packetRequest  = "request"
	packetResponse = "response"
	packetEvent    = "event"
)

// Request ops understood by the fsi service.
const (
	opInit         = "init"
	opEval         = "eval"
	opCheck        = "check"
	opDeclarations = "declarations"
	opTooltip      = "tooltip"
	opValueInfos   = "valueInfos"
	opGetValue     = "getValue"
	opSetValue     = "setValue"
	opCancel       = "cancel"
	opQuit         = "quit"
)

// Event ops emitted by the service while an evaluation runs.
const (
	opStdout = "stdout"
	opStderr = "stderr"
)

// packet is the unit of exchange with the fsi service: one JSON object per
// line. Responses echo the seq of the request they answer; events carry the
// seq of the evaluation that produced them.
type packet struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Op   string          `json:"op"`
	Body json.RawMessage `json:"body,omitempty"`
}

// wireError is the service's error shape inside response bodies. Line is
// 1-based, Column 0-based, both zero when unknown.
type wireError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e *wireError) toScriptError() error {
	if e == nil {
		return nil
	}
	return &engine.ScriptError{Message: e.Message, Line: e.Line, Column: e.Column}
}

type evalRequest struct {
	Code string `json:"code"`
}

type checkRequest struct {
	Code string `json:"code"`
}

type declarationsRequest struct {
	Code   string `json:"code"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type tooltipRequest struct {
	Code  string   `json:"code"`
	Line  int      `json:"line"`
	Names []string `json:"names"`
}

type getValueRequest struct {
	Name string `json:"name"`
}

type setValueRequest struct {
	Name     string `json:"name"`
	TypeName string `json:"typeName,omitempty"`
	Value    string `json:"value"`
}

// cancelRequest asks the service to interrupt the in-flight request with
// the given sequence number.
type cancelRequest struct {
	Target uint64 `json:"target"`
}

type evalResponse struct {
	Value       *engine.ResultValue `json:"value,omitempty"`
	Diagnostics []engine.Diagnostic `json:"diagnostics,omitempty"`
	Canceled    bool                `json:"canceled,omitempty"`
	Error       *wireError          `json:"error,omitempty"`
}

type checkResponse struct {
	Diagnostics []engine.Diagnostic `json:"diagnostics,omitempty"`
	Error       *wireError          `json:"error,omitempty"`
}

type declarationsResponse struct {
	Declarations []engine.Declaration `json:"declarations,omitempty"`
	Error        *wireError           `json:"error,omitempty"`
}

type tooltipResponse struct {
	Tooltip *engine.Tooltip `json:"tooltip,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type valueInfosResponse struct {
	Values []engine.BoundValue `json:"values,omitempty"`
	Error  *wireError          `json:"error,omitempty"`
}

type getValueResponse struct {
	Value *engine.BoundValue `json:"value,omitempty"`
	Found bool               `json:"found"`
	Error *wireError         `json:"error,omitempty"`
}

// ackResponse is the body of responses that carry no payload.
type ackResponse struct {
	Error *wireError `json:"error,omitempty"`
}

// outputEvent is the body of stdout/stderr event packets.
type outputEvent struct {
	Text string `json:"text"`
}
