package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/krauthaufen/interactive/engine"
	"github.com/krauthaufen/interactive/internal/util"
	"github.com/krauthaufen/interactive/protocol"
	"github.com/krauthaufen/interactive/tokenizer"
)

// Handle processes one host command, publishing its event stream through
// the kernel's Publisher. The returned error reports kernel-level misuse
// (nil command, closed kernel); command-level failures surface as
// CommandFailed events and a nil return.
func (k *Kernel) Handle(ctx context.Context, env protocol.CommandEnvelope) error {
	if env.Command == nil {
		return errors.New("command envelope carries no command")
	}
	if k.isClosed() {
		return ErrKernelClosed
	}
	if env.CommandType == "" {
		env.CommandType = protocol.CommandTypeOf(env.Command)
	}

	start := time.Now()
	var outcome error

	switch cmd := deref(env.Command).(type) {
	case protocol.SubmitCode:
		outcome = k.runSubmission(ctx, &env, cmd)
	case protocol.RequestCompletions:
		outcome = k.handleRequestCompletions(ctx, &env, cmd)
	case protocol.RequestHoverText:
		outcome = k.handleRequestHoverText(ctx, &env, cmd)
	case protocol.RequestDiagnostics:
		outcome = k.handleRequestDiagnostics(ctx, &env, cmd)
	case protocol.RequestValueInfos:
		outcome = k.handleRequestValueInfos(ctx, &env)
	case protocol.RequestValue:
		outcome = k.handleRequestValue(ctx, &env, cmd)
	case protocol.SendValue:
		outcome = k.handleSendValue(ctx, &env, cmd)
	case protocol.Quit:
		outcome = k.handleQuit(&env)
	default:
		outcome = fmt.Errorf("unsupported command type %q", env.CommandType)
		k.fail(&env, outcome.Error())
	}

	k.observeCommand(&env, time.Since(start), outcome)

	return nil
}

// deref lets hosts hand over commands by pointer or by value.
func deref(c protocol.Command) protocol.Command {
	switch v := c.(type) {
	case *protocol.SubmitCode:
		return *v
	case *protocol.RequestCompletions:
		return *v
	case *protocol.RequestHoverText:
		return *v
	case *protocol.RequestDiagnostics:
		return *v
	case *protocol.RequestValueInfos:
		return *v
	case *protocol.RequestValue:
		return *v
	case *protocol.SendValue:
		return *v
	case *protocol.Quit:
		return *v
	default:
		return c
	}
}

// runSubmission evaluates one code submission end to end: acknowledgement,
// lazy session start, cancellable evaluation with interleaved output, then
// diagnostics and exactly one terminal event. Like every handler it returns
// the error its terminal event mirrors, so internal callers (package init
// scripts, extension scripts) can branch on the outcome.
func (k *Kernel) runSubmission(ctx context.Context, env *protocol.CommandEnvelope, cmd protocol.SubmitCode) error {
	k.publish(protocol.CodeSubmissionReceived{Code: cmd.Code}, env)

	k.submitMu.Lock()
	defer k.submitMu.Unlock()

	sess, err := k.ensureSession(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	if cmd.SubmissionType == protocol.SubmissionTypeDiagnose {
		diags, err := sess.Check(ctx, cmd.Code)
		if err != nil {
			k.fail(env, err.Error())
			return err
		}
		k.publishDiagnostics(env, diags)
		k.succeed(env)
		return nil
	}

	evalCtx, cancel := context.WithCancel(ctx)
	k.mu.Lock()
	k.running[env.Token] = cancel
	k.mu.Unlock()
	defer func() {
		k.mu.Lock()
		delete(k.running, env.Token)
		k.mu.Unlock()
		cancel()
	}()

	k.current.Store(env)
	res, evalErr := sess.Eval(evalCtx, cmd.Code)
	k.current.Store(nil)

	var diags []protocol.Diagnostic
	if res != nil && len(res.Diagnostics) > 0 {
		diags = k.publishDiagnostics(env, res.Diagnostics)
	}

	switch {
	case res != nil && res.Canceled:
		k.cancelled(env)
		return context.Canceled
	case errors.Is(evalErr, context.Canceled) || errors.Is(evalErr, context.DeadlineExceeded):
		k.cancelled(env)
		return evalErr
	case evalErr != nil:
		message := failureMessage(diags, evalErr)
		k.fail(env, message)
		return evalErr
	default:
		if res != nil && res.Value != nil {
			k.publish(protocol.ReturnValueProduced{
				FormattedValues: []protocol.FormattedValue{
					protocol.PlainText(util.TruncateString(res.Value.DisplayValue, k.valueDisplayLimit)),
				},
			}, env)
		}
		k.succeed(env)
		return nil
	}
}

func (k *Kernel) handleRequestCompletions(ctx context.Context, env *protocol.CommandEnvelope, cmd protocol.RequestCompletions) error {
	sess, err := k.ensureSession(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	pos := cmd.LinePosition
	decls, err := sess.Declarations(ctx, cmd.Code, pos.Line+1, pos.Character)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	items := make([]protocol.CompletionItem, 0, len(decls))
	for _, d := range decls {
		items = append(items, completionItem(d))
	}

	var span *protocol.LinePositionSpan
	if line, ok := util.LineAt(cmd.Code, pos.Line); ok {
		start, end := util.WordSpanAt(line, pos.Character)
		span = &protocol.LinePositionSpan{
			Start: protocol.LinePosition{Line: pos.Line, Character: start},
			End:   protocol.LinePosition{Line: pos.Line, Character: end},
		}
	}

	k.publish(protocol.CompletionsProduced{Completions: items, Span: span}, env)
	k.succeed(env)
	return nil
}

func (k *Kernel) handleRequestHoverText(ctx context.Context, env *protocol.CommandEnvelope, cmd protocol.RequestHoverText) error {
	pos := cmd.LinePosition

	// Resolve the hovered identifier island before touching the engine, so
	// hovering a comment or blank region never spins up a session.
	line, ok := util.LineAt(cmd.Code, pos.Line)
	if !ok {
		k.succeed(env)
		return nil
	}
	island, err := tokenizer.IslandAt(line, pos.Character)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}
	if island == nil {
		k.succeed(env)
		return nil
	}

	sess, err := k.ensureSession(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	tip, err := sess.Tooltip(ctx, cmd.Code, pos.Line+1, island.Names)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}
	if tip == nil || strings.TrimSpace(tip.Text) == "" {
		k.succeed(env)
		return nil
	}

	span := protocol.NewLinePositionSpan(
		protocol.LinePosition{Line: pos.Line, Character: island.Start},
		protocol.LinePosition{Line: pos.Line, Character: island.End},
	)
	k.publish(protocol.HoverTextProduced{
		Content: []protocol.FormattedValue{protocol.Markdown(hoverMarkdown(tip))},
		Span:    &span,
	}, env)
	k.succeed(env)
	return nil
}

func (k *Kernel) handleRequestDiagnostics(ctx context.Context, env *protocol.CommandEnvelope, cmd protocol.RequestDiagnostics) error {
	sess, err := k.ensureSession(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	diags, err := sess.Check(ctx, cmd.Code)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	// Published even when empty: the host clears stale squiggles on it.
	k.publishDiagnostics(env, diags)
	k.succeed(env)
	return nil
}

func (k *Kernel) handleRequestValueInfos(ctx context.Context, env *protocol.CommandEnvelope) error {
	sess, err := k.ensureSession(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	values, err := sess.ValueInfos(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	infos := make([]protocol.ValueInfo, 0, len(values))
	for _, v := range values {
		infos = append(infos, protocol.ValueInfo{
			Name:           v.Name,
			FormattedValue: protocol.PlainText(util.TruncateString(v.DisplayValue, k.valueDisplayLimit)),
			TypeName:       v.TypeName,
		})
	}

	k.publish(protocol.ValueInfosProduced{ValueInfos: infos}, env)
	k.succeed(env)
	return nil
}

func (k *Kernel) handleRequestValue(ctx context.Context, env *protocol.CommandEnvelope, cmd protocol.RequestValue) error {
	sess, err := k.ensureSession(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	value, found, err := sess.TryGetValue(ctx, cmd.Name)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}
	if !found {
		err := fmt.Errorf("value %q not found", cmd.Name)
		k.fail(env, err.Error())
		return err
	}

	mimeType := cmd.MimeType
	if mimeType == "" {
		mimeType = "text/plain"
	}

	k.publish(protocol.ValueProduced{
		Name:           cmd.Name,
		FormattedValue: protocol.FormattedValue{MimeType: mimeType, Value: value.DisplayValue},
	}, env)
	k.succeed(env)
	return nil
}

func (k *Kernel) handleSendValue(ctx context.Context, env *protocol.CommandEnvelope, cmd protocol.SendValue) error {
	sess, err := k.ensureSession(ctx)
	if err != nil {
		k.fail(env, err.Error())
		return err
	}

	if err := sess.SetValue(ctx, cmd.Name, cmd.TypeName, cmd.FormattedValue.Value); err != nil {
		k.fail(env, err.Error())
		return err
	}

	k.succeed(env)
	return nil
}

func (k *Kernel) handleQuit(env *protocol.CommandEnvelope) error {
	if err := k.shutdown(); err != nil {
		k.fail(env, err.Error())
		return err
	}
	k.succeed(env)
	return nil
}

// publishDiagnostics remaps engine diagnostics to host positions and
// publishes them alongside their plain-text renderings. It returns the
// remapped slice so failure messages can reuse it.
func (k *Kernel) publishDiagnostics(env *protocol.CommandEnvelope, diags []engine.Diagnostic) []protocol.Diagnostic {
	remapped := remapDiagnostics(diags)
	formatted := make([]protocol.FormattedValue, 0, len(remapped))
	for _, d := range remapped {
		formatted = append(formatted, protocol.PlainText(d.String()))
	}
	k.publish(protocol.DiagnosticsProduced{
		Diagnostics:          remapped,
		FormattedDiagnostics: formatted,
	}, env)
	return remapped
}
