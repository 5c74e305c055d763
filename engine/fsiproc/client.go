package fsiproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krauthaufen/interactive/engine"
	"github.com/krauthaufen/interactive/logging"
)

// cancelGrace bounds how long Eval waits for the service to confirm an
// interrupt before giving up on the in-flight evaluation.
const cancelGrace = 5 * time.Second

// Options configures the fsi service client using the functional options
// pattern.
type Options struct {
	// Command is the fsi service binary to spawn.
	Command string

	// Args are passed to the service binary.
	Args []string

	// Dir is the working directory for the service process. Empty means
	// the caller's working directory.
	Dir string

	// Env entries are appended to the inherited environment.
	Env []string

	// StartupTimeout bounds the init handshake after the process starts.
	StartupTimeout time.Duration

	// CloseTimeout bounds graceful shutdown before the process is killed.
	CloseTimeout time.Duration

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Client drives one fsi service process. It implements engine.Session and
// engine.OutputSource.
//
// Requests may overlap; correlation uses the packet sequence number and a
// pending map of reply channels. The background read loop owns the
// service's stdout: it dispatches responses to waiters and output events to
// the registered handler, and a transport failure wakes every pending call.
type Client struct {
	opts  Options
	cmd   *exec.Cmd
	tr    *transport
	stdin io.WriteCloser

	seq       atomic.Uint64
	pending   map[uint64]chan *packet
	pendingMu sync.Mutex

	handlerMu sync.RWMutex
	handler   engine.OutputHandler

	stateMu sync.Mutex
	state   engine.State

	// done is closed when the read loop exits; readErr is set first.
	done    chan struct{}
	readErr error

	waitErr chan error
}

var (
	_ engine.Session      = (*Client)(nil)
	_ engine.OutputSource = (*Client)(nil)
)

// New spawns the fsi service process and performs the init handshake. The
// context bounds startup only; the returned client outlives it.
func New(ctx context.Context, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		StartupTimeout: 30 * time.Second,
		CloseTimeout:   5 * time.Second,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if kl, ok := opts.Logger.(*logging.KernelLogger); ok {
		opts.Logger = kl.WithComponent("fsiproc")
	}

	if opts.Command == "" {
		return nil, fmt.Errorf("fsiproc: no service command configured")
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	// The service's own stderr is plumbing noise, not user output; user
	// output arrives as event packets.
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start fsi service %q: %w", opts.Command, err)
	}

	c := &Client{
		opts:    opts,
		cmd:     cmd,
		tr:      newTransport(stdout, stdin),
		stdin:   stdin,
		pending: make(map[uint64]chan *packet),
		state:   engine.StateStarting,
		done:    make(chan struct{}),
		waitErr: make(chan error, 1),
	}

	go func() { c.waitErr <- cmd.Wait() }()
	go c.readLoop()

	initCtx, cancel := context.WithTimeout(ctx, opts.StartupTimeout)
	defer cancel()

	var ack ackResponse
	if err := c.call(initCtx, opInit, nil, &ack); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("fsi service handshake: %w", err)
	}
	if err := ack.Error.toScriptError(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("fsi service handshake: %w", err)
	}

	c.setState(engine.StateReady)
	c.opts.Logger.Debug("fsi service ready", "command", opts.Command, "pid", cmd.Process.Pid)

	return c, nil
}

// Factory adapts New to the engine.Factory signature used for lazy session
// construction.
func Factory(optFns ...func(o *Options)) engine.Factory {
	return func(ctx context.Context) (engine.Session, error) {
		return New(ctx, optFns...)
	}
}

// State reports the session's lifecycle state.
func (c *Client) State() engine.State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s engine.State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Client) isClosed() bool {
	return c.State() == engine.StateClosed
}

// SetOutputHandler registers the handler that receives interleaved console
// output. Passing nil drops output on the floor.
func (c *Client) SetOutputHandler(h engine.OutputHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// Eval compiles and runs a submission. Cancelling ctx sends a cancel packet
// for the in-flight evaluation and waits briefly for the service to confirm;
// a confirmed interrupt returns EvalResult{Canceled: true} with a nil error.
func (c *Client) Eval(ctx context.Context, code string) (*engine.EvalResult, error) {
	start := time.Now()
	res, err := c.eval(ctx, code)
	c.observeCall(opEval, time.Since(start), err)
	return res, err
}

func (c *Client) eval(ctx context.Context, code string) (*engine.EvalResult, error) {
	if c.isClosed() {
		return nil, engine.ErrSessionClosed
	}

	body, err := json.Marshal(evalRequest{Code: code})
	if err != nil {
		return nil, fmt.Errorf("encode eval request: %w", err)
	}

	seq, ch := c.register()
	defer c.unregister(seq)

	if err := c.tr.send(packet{Type: packetRequest, Seq: seq, Op: opEval, Body: body}); err != nil {
		return nil, fmt.Errorf("send eval request: %w", err)
	}

	var p *packet
	select {
	case p = <-ch:

	case <-ctx.Done():
		if err := c.tr.send(c.cancelPacket(seq)); err != nil {
			return nil, ctx.Err()
		}
		// The service confirms the interrupt with a response marked
		// canceled; waiting for it keeps the session usable afterwards.
		timer := time.NewTimer(cancelGrace)
		defer timer.Stop()
		select {
		case p = <-ch:
		case <-timer.C:
			return nil, ctx.Err()
		case <-c.done:
			return nil, c.closeReason()
		}

	case <-c.done:
		return nil, c.closeReason()
	}

	var resp evalResponse
	if err := json.Unmarshal(p.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode eval response: %w", err)
	}

	res := &engine.EvalResult{
		Value:       resp.Value,
		Diagnostics: resp.Diagnostics,
		Canceled:    resp.Canceled,
	}
	if resp.Canceled {
		return res, nil
	}
	if err := resp.Error.toScriptError(); err != nil {
		return res, err
	}
	return res, nil
}

// Check type-checks a submission without evaluating it.
func (c *Client) Check(ctx context.Context, code string) ([]engine.Diagnostic, error) {
	var resp checkResponse
	if err := c.call(ctx, opCheck, checkRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.toScriptError(); err != nil {
		return nil, err
	}
	return resp.Diagnostics, nil
}

// Declarations lists completion candidates at a position (1-based line,
// 0-based column).
func (c *Client) Declarations(ctx context.Context, code string, line, column int) ([]engine.Declaration, error) {
	var resp declarationsResponse
	req := declarationsRequest{Code: code, Line: line, Column: column}
	if err := c.call(ctx, opDeclarations, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.toScriptError(); err != nil {
		return nil, err
	}
	return resp.Declarations, nil
}

// Tooltip computes hover documentation for the dotted identifier chain in
// names on the given 1-based line.
func (c *Client) Tooltip(ctx context.Context, code string, line int, names []string) (*engine.Tooltip, error) {
	var resp tooltipResponse
	req := tooltipRequest{Code: code, Line: line, Names: names}
	if err := c.call(ctx, opTooltip, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.toScriptError(); err != nil {
		return nil, err
	}
	return resp.Tooltip, nil
}

// ValueInfos lists the values currently bound in the session.
func (c *Client) ValueInfos(ctx context.Context) ([]engine.BoundValue, error) {
	var resp valueInfosResponse
	if err := c.call(ctx, opValueInfos, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.toScriptError(); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// TryGetValue looks up one bound value by name.
func (c *Client) TryGetValue(ctx context.Context, name string) (*engine.BoundValue, bool, error) {
	var resp getValueResponse
	if err := c.call(ctx, opGetValue, getValueRequest{Name: name}, &resp); err != nil {
		return nil, false, err
	}
	if err := resp.Error.toScriptError(); err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Found, nil
}

// SetValue binds a host-provided value into the session under name.
func (c *Client) SetValue(ctx context.Context, name, typeName, value string) error {
	var resp ackResponse
	req := setValueRequest{Name: name, TypeName: typeName, Value: value}
	if err := c.call(ctx, opSetValue, req, &resp); err != nil {
		return err
	}
	return resp.Error.toScriptError()
}

// Close tears the session down: best-effort quit request, stdin close, then
// a bounded wait for process exit before killing it. Close is idempotent.
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.state == engine.StateClosed {
		c.stateMu.Unlock()
		return nil
	}
	c.state = engine.StateClosed
	c.stateMu.Unlock()

	_ = c.tr.send(packet{Type: packetRequest, Seq: c.seq.Add(1), Op: opQuit})
	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	if c.cmd == nil {
		return nil
	}

	timer := time.NewTimer(c.opts.CloseTimeout)
	defer timer.Stop()

	select {
	case err := <-c.waitErr:
		if err != nil {
			c.opts.Logger.Debug("fsi service exited", "error", err)
		}
	case <-timer.C:
		c.opts.Logger.Warn("fsi service did not exit in time, killing", "pid", c.cmd.Process.Pid)
		if err := c.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill fsi service: %w", err)
		}
		<-c.waitErr
	}

	return nil
}

// call sends one request and decodes its response into out. It is the
// shared path for every op without eval's cancellation choreography.
func (c *Client) call(ctx context.Context, op string, body any, out any) error {
	start := time.Now()
	err := c.doCall(ctx, op, body, out)
	c.observeCall(op, time.Since(start), err)
	return err
}

func (c *Client) doCall(ctx context.Context, op string, body any, out any) error {
	if c.isClosed() {
		return engine.ErrSessionClosed
	}

	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		raw = data
	}

	seq, ch := c.register()
	defer c.unregister(seq)

	if err := c.tr.send(packet{Type: packetRequest, Seq: seq, Op: op, Body: raw}); err != nil {
		return fmt.Errorf("send %s request: %w", op, err)
	}

	select {
	case p := <-ch:
		if out == nil || len(p.Body) == 0 {
			return nil
		}
		if err := json.Unmarshal(p.Body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
		return nil

	case <-ctx.Done():
		return ctx.Err()

	case <-c.done:
		return c.closeReason()
	}
}

// engineCallObserver is the optional per-call reporting hook a Logger can
// implement; *logging.KernelLogger does.
type engineCallObserver interface {
	LogEngineCall(op string, dur time.Duration, success bool, err error)
}

// observeCall reports one completed service call. Calls cancelled by the
// caller are skipped: hosts abandon completion requests constantly while the
// user types, and those are not failures worth a log line. Script errors
// count as completed calls, since failing user code is reported to the host
// through events; only transport health belongs here.
func (c *Client) observeCall(op string, dur time.Duration, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	var scriptErr *engine.ScriptError
	if errors.As(err, &scriptErr) {
		err = nil
	}
	if obs, ok := c.opts.Logger.(engineCallObserver); ok {
		obs.LogEngineCall(op, dur, err == nil, err)
	}
}

func (c *Client) register() (uint64, chan *packet) {
	seq := c.seq.Add(1)
	ch := make(chan *packet, 1)

	c.pendingMu.Lock()
	c.pending[seq] = ch
	c.pendingMu.Unlock()

	return seq, ch
}

func (c *Client) unregister(seq uint64) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

func (c *Client) cancelPacket(target uint64) packet {
	body, _ := json.Marshal(cancelRequest{Target: target})
	return packet{Type: packetRequest, Seq: c.seq.Add(1), Op: opCancel, Body: body}
}

// closeReason distinguishes an orderly Close from a transport failure for
// callers woken by the done channel.
func (c *Client) closeReason() error {
	if c.readErr != nil && !c.isClosed() {
		return fmt.Errorf("fsi service transport failed: %w", c.readErr)
	}
	return engine.ErrSessionClosed
}

// readLoop owns the service's stdout until the pipe breaks: responses go to
// their pending waiters, events to the output handler.
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		p, err := c.tr.receive()
		if err != nil {
			c.readErr = err
			return
		}

		switch p.Type {
		case packetResponse:
			c.pendingMu.Lock()
			ch, ok := c.pending[p.Seq]
			c.pendingMu.Unlock()

			if !ok {
				c.opts.Logger.Debug("dropping response for unknown seq", "seq", p.Seq, "op", p.Op)
				continue
			}
			select {
			case ch <- p:
			default:
			}

		case packetEvent:
			c.dispatchEvent(p)

		default:
			c.opts.Logger.Warn("unexpected packet type from fsi service", "type", p.Type)
		}
	}
}

func (c *Client) dispatchEvent(p *packet) {
	var ev outputEvent
	if len(p.Body) > 0 {
		if err := json.Unmarshal(p.Body, &ev); err != nil {
			c.opts.Logger.Warn("bad event body from fsi service", "op", p.Op, "error", err)
			return
		}
	}

	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h == nil {
		return
	}

	switch p.Op {
	case opStdout:
		h(engine.StreamStdout, ev.Text)
	case opStderr:
		h(engine.StreamStderr, ev.Text)
	default:
		c.opts.Logger.Debug("ignoring unknown event op", "op", p.Op)
	}
}
