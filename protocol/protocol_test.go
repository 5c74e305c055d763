package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// Command envelope round-trip and dispatch tests
func TestCommandEnvelope_RoundTrip(t *testing.T) {
	cmds := []Command{
		SubmitCode{Code: "let x = 1", SubmissionType: SubmissionTypeRun},
		RequestCompletions{Code: "List.ma", LinePosition: LinePosition{Line: 0, Character: 7}},
		RequestHoverText{Code: "sqrt 2.0", LinePosition: LinePosition{Line: 0, Character: 1}},
		RequestDiagnostics{Code: "let y ="},
		RequestValueInfos{},
		RequestValue{Name: "x", MimeType: "application/json"},
		SendValue{Name: "input", FormattedValue: PlainText("42"), TypeName: "System.Int32"},
		Quit{},
	}

	for _, cmd := range cmds {
		env := NewCommandEnvelope(cmd)
		if env.Token == "" {
			t.Fatalf("NewCommandEnvelope left token empty for %T", cmd)
		}
		if env.CommandType == "" {
			t.Fatalf("CommandTypeOf returned empty for %T", cmd)
		}

		data, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("marshal %T: %v", cmd, err)
		}

		var got CommandEnvelope
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %T: %v", cmd, err)
		}

		if got.Token != env.Token || got.CommandType != env.CommandType {
			t.Fatalf("envelope fields changed in transit: %+v vs %+v", got, env)
		}
		if got.Command != cmd {
			t.Fatalf("command changed in transit: %#v vs %#v", got.Command, cmd)
		}
	}
}

func TestCommandEnvelope_UnknownType(t *testing.T) {
	data := []byte(`{"token":"t1","commandType":"Reboot","command":{}}`)

	var env CommandEnvelope
	err := json.Unmarshal(data, &env)
	if err == nil {
		t.Fatal("expected error for unknown command type")
	}
	if !strings.Contains(err.Error(), "Reboot") {
		t.Fatalf("error should name the unknown type: %v", err)
	}
}

func TestCommandEnvelope_MissingBody(t *testing.T) {
	data := []byte(`{"token":"t2","commandType":"Quit"}`)

	var env CommandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("absent command body should decode as zero value: %v", err)
	}
	if _, ok := env.Command.(Quit); !ok {
		t.Fatalf("expected Quit, got %T", env.Command)
	}
}

func TestCommandEnvelope_TokensUnique(t *testing.T) {
	a := NewCommandEnvelope(Quit{})
	b := NewCommandEnvelope(Quit{})
	if a.Token == b.Token {
		t.Error("expected unique tokens")
	}
}

// Event envelope round-trip and dispatch tests
func TestEventEnvelope_RoundTrip(t *testing.T) {
	events := []Event{
		CodeSubmissionReceived{Code: "let x = 1"},
		CommandSucceeded{},
		CommandFailed{Message: "boom"},
		CommandCancelled{},
		ValueProduced{Name: "x", FormattedValue: PlainText("1")},
		KernelExtensionLoaded{Name: "Plotting", Directory: "/pkg/plotting/1.0.0"},
	}

	cause := NewCommandEnvelope(SubmitCode{Code: "let x = 1"})

	for _, ev := range events {
		env := NewEventEnvelope(ev, &cause)
		if env.Token != cause.Token {
			t.Fatalf("event token should echo the command token, got %q", env.Token)
		}

		data, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("marshal %T: %v", ev, err)
		}

		var got EventEnvelope
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %T: %v", ev, err)
		}

		if got.Event != ev {
			t.Fatalf("event changed in transit: %#v vs %#v", got.Event, ev)
		}
		if got.Command == nil || got.Command.Token != cause.Token {
			t.Fatalf("causing command lost in transit: %+v", got.Command)
		}
		if _, ok := got.Command.Command.(SubmitCode); !ok {
			t.Fatalf("causing command body lost in transit: %T", got.Command.Command)
		}
	}
}

func TestEventEnvelope_SliceFieldsSurvive(t *testing.T) {
	ev := CompletionsProduced{
		Completions: []CompletionItem{
			{DisplayText: "map", Kind: "Method", InsertText: "map"},
			{DisplayText: "mapi", Kind: "Method", InsertText: "mapi"},
		},
		Span: &LinePositionSpan{
			Start: LinePosition{Line: 0, Character: 5},
			End:   LinePosition{Line: 0, Character: 7},
		},
	}

	data, err := json.Marshal(NewEventEnvelope(ev, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got EventEnvelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	decoded, ok := got.Event.(CompletionsProduced)
	if !ok {
		t.Fatalf("expected CompletionsProduced, got %T", got.Event)
	}
	if len(decoded.Completions) != 2 || decoded.Completions[1].DisplayText != "mapi" {
		t.Fatalf("completions lost in transit: %+v", decoded.Completions)
	}
	if decoded.Span == nil || decoded.Span.End.Character != 7 {
		t.Fatalf("span lost in transit: %+v", decoded.Span)
	}
}

func TestEventEnvelope_UnknownType(t *testing.T) {
	data := []byte(`{"token":"t1","eventType":"Exploded","event":{}}`)

	var env EventEnvelope
	err := json.Unmarshal(data, &env)
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if !strings.Contains(err.Error(), "Exploded") {
		t.Fatalf("error should name the unknown type: %v", err)
	}
}

// Closed set discrimination tests
func TestEvent_DiscriminatedUnion(t *testing.T) {
	events := []Event{
		CodeSubmissionReceived{},
		CommandSucceeded{},
		CommandFailed{},
		CommandCancelled{},
		ReturnValueProduced{},
		StandardOutputValueProduced{},
		StandardErrorValueProduced{},
		CompletionsProduced{},
		HoverTextProduced{},
		DiagnosticsProduced{},
		ValueInfosProduced{},
		ValueProduced{},
		PackageAdded{},
		KernelExtensionLoaded{},
	}
	for _, ev := range events {
		if EventTypeOf(ev) == "" {
			t.Fatalf("EventTypeOf missing case for %T", ev)
		}
	}
}

func TestCommand_DiscriminatedUnion(t *testing.T) {
	cmds := []Command{
		SubmitCode{},
		RequestCompletions{},
		RequestHoverText{},
		RequestDiagnostics{},
		RequestValueInfos{},
		RequestValue{},
		SendValue{},
		Quit{},
	}
	for _, cmd := range cmds {
		if CommandTypeOf(cmd) == "" {
			t.Fatalf("CommandTypeOf missing case for %T", cmd)
		}
	}
}
