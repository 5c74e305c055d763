package interactive

import (
	"context"
	"errors"
	"sync"

	"github.com/krauthaufen/interactive/kernel"
	"github.com/krauthaufen/interactive/protocol"
)

// eventRouter tees kernel events to the host publisher while collecting the
// streams of commands issued through the typed helpers. Events whose token
// was never registered (capability events, recursive script submissions)
// are forwarded only.
type eventRouter struct {
	forward kernel.Publisher

	mu        sync.Mutex
	collected map[string][]protocol.EventEnvelope
}

func (r *eventRouter) PublishEvent(env protocol.EventEnvelope) {
	r.mu.Lock()
	if _, ok := r.collected[env.Token]; ok {
		r.collected[env.Token] = append(r.collected[env.Token], env)
	}
	r.mu.Unlock()

	if r.forward != nil {
		r.forward.PublishEvent(env)
	}
}

func (r *eventRouter) begin(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collected[token] = []protocol.EventEnvelope{}
}

func (r *eventRouter) end(token string) []protocol.EventEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.collected[token]
	delete(r.collected, token)
	return events
}

// do runs one command synchronously and returns the events it produced.
// Handle publishes the whole stream before returning, so no waiting is
// involved.
func (k *Kernel) do(ctx context.Context, cmd protocol.Command) ([]protocol.EventEnvelope, error) {
	env := protocol.NewCommandEnvelope(cmd)
	k.router.begin(env.Token)
	err := k.Handle(ctx, env)
	events := k.router.end(env.Token)
	return events, err
}

// terminalError converts a CommandFailed terminal event into a Go error.
func terminalError(events []protocol.EventEnvelope) error {
	for _, ev := range events {
		if failed, ok := ev.Event.(protocol.CommandFailed); ok {
			return errors.New(failed.Message)
		}
	}
	return nil
}

// SubmitResult is the collected outcome of one code submission.
type SubmitResult struct {
	// Token is the submission's command token, usable with Cancel while
	// the submission runs.
	Token string

	// Value is the submission's rendered return value, nil for unit-typed
	// submissions.
	Value *protocol.FormattedValue

	// Diagnostics carries compiler messages; warnings appear on success
	// too.
	Diagnostics []protocol.Diagnostic

	// Stdout and Stderr aggregate console output interleaved during the
	// run.
	Stdout string
	Stderr string

	// Cancelled reports that the submission was interrupted, by Cancel or
	// by the configured eval timeout.
	Cancelled bool

	// Events is the submission's full event stream in publish order.
	Events []protocol.EventEnvelope
}

// SubmitCode evaluates a code submission and collects its event stream. A
// failed submission returns the partial result (diagnostics, output seen so
// far) together with an error carrying the failure message.
func (k *Kernel) SubmitCode(ctx context.Context, code string) (*SubmitResult, error) {
	events, err := k.do(ctx, protocol.SubmitCode{Code: code})
	if err != nil {
		return nil, err
	}

	res := &SubmitResult{Events: events}
	var failure error
	for _, ev := range events {
		res.Token = ev.Token
		switch e := ev.Event.(type) {
		case protocol.ReturnValueProduced:
			if len(e.FormattedValues) > 0 {
				v := e.FormattedValues[0]
				res.Value = &v
			}
		case protocol.DiagnosticsProduced:
			res.Diagnostics = append(res.Diagnostics, e.Diagnostics...)
		case protocol.StandardOutputValueProduced:
			for _, fv := range e.FormattedValues {
				res.Stdout += fv.Value
			}
		case protocol.StandardErrorValueProduced:
			for _, fv := range e.FormattedValues {
				res.Stderr += fv.Value
			}
		case protocol.CommandCancelled:
			res.Cancelled = true
		case protocol.CommandFailed:
			failure = errors.New(e.Message)
		}
	}

	return res, failure
}

// Completions returns completion proposals at a 0-based position.
func (k *Kernel) Completions(ctx context.Context, code string, pos protocol.LinePosition) (*protocol.CompletionsProduced, error) {
	events, err := k.do(ctx, protocol.RequestCompletions{Code: code, LinePosition: pos})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if e, ok := ev.Event.(protocol.CompletionsProduced); ok {
			return &e, nil
		}
	}
	return nil, terminalError(events)
}

// HoverText computes hover documentation at a 0-based position. It returns
// (nil, nil) when nothing documentable is under the position, e.g. inside a
// comment or whitespace.
func (k *Kernel) HoverText(ctx context.Context, code string, pos protocol.LinePosition) (*protocol.HoverTextProduced, error) {
	events, err := k.do(ctx, protocol.RequestHoverText{Code: code, LinePosition: pos})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if e, ok := ev.Event.(protocol.HoverTextProduced); ok {
			return &e, nil
		}
	}
	return nil, terminalError(events)
}

// Diagnostics type-checks code without evaluating it. The returned slice is
// empty, not nil, when the code is clean.
func (k *Kernel) Diagnostics(ctx context.Context, code string) ([]protocol.Diagnostic, error) {
	events, err := k.do(ctx, protocol.RequestDiagnostics{Code: code})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if e, ok := ev.Event.(protocol.DiagnosticsProduced); ok {
			if e.Diagnostics == nil {
				return []protocol.Diagnostic{}, nil
			}
			return e.Diagnostics, nil
		}
	}
	return nil, terminalError(events)
}

// ValueInfos lists the values currently bound in the evaluation session.
func (k *Kernel) ValueInfos(ctx context.Context) ([]protocol.ValueInfo, error) {
	events, err := k.do(ctx, protocol.RequestValueInfos{})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if e, ok := ev.Event.(protocol.ValueInfosProduced); ok {
			return e.ValueInfos, nil
		}
	}
	return nil, terminalError(events)
}

// Value fetches one bound value by name, rendered in the requested mime
// type ("" means text/plain).
func (k *Kernel) Value(ctx context.Context, name, mimeType string) (*protocol.FormattedValue, error) {
	events, err := k.do(ctx, protocol.RequestValue{Name: name, MimeType: mimeType})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if e, ok := ev.Event.(protocol.ValueProduced); ok {
			v := e.FormattedValue
			return &v, nil
		}
	}
	return nil, terminalError(events)
}

// SendValue binds a host-provided value into the evaluation session.
func (k *Kernel) SendValue(ctx context.Context, name, typeName string, value protocol.FormattedValue) error {
	events, err := k.do(ctx, protocol.SendValue{Name: name, TypeName: typeName, FormattedValue: value})
	if err != nil {
		return err
	}
	return terminalError(events)
}

// Quit runs the Quit command through the event stream and shuts the kernel
// down. Programmatic hosts can call Close instead.
func (k *Kernel) Quit(ctx context.Context) error {
	events, err := k.do(ctx, protocol.Quit{})
	if err != nil {
		return err
	}
	return terminalError(events)
}
