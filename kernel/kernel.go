package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/krauthaufen/interactive/engine"
	"github.com/krauthaufen/interactive/extensions"
	"github.com/krauthaufen/interactive/logging"
	"github.com/krauthaufen/interactive/nuget"
	"github.com/krauthaufen/interactive/protocol"
)

// ErrKernelClosed is returned by Handle after Quit or Close.
var ErrKernelClosed = errors.New("kernel closed")

// DefaultValueDisplayLimit clamps formatted value renderings unless
// overridden.
const DefaultValueDisplayLimit = 4096

// Publisher receives every event envelope the kernel emits. Implementations
// are called from the handling goroutine and from the engine's output
// dispatch, so they must be safe for concurrent use and should not block.
type Publisher interface {
	PublishEvent(env protocol.EventEnvelope)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(env protocol.EventEnvelope)

// PublishEvent implements Publisher.
func (f PublisherFunc) PublishEvent(env protocol.EventEnvelope) { f(env) }

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Name identifies the kernel to hosts, e.g. "fsharp".
	Name string
	// ValueDisplayLimit clamps formatted values in ReturnValueProduced and
	// ValueInfosProduced renderings, in runes. Zero or negative disables
	// clamping.
	ValueDisplayLimit int
	// Factory opens the evaluation session on first use.
	Factory engine.Factory
	// Publisher receives every event the kernel emits.
	Publisher Publisher
	// Resolver performs package resolution for the restore context. When
	// nil, package restore fails with nuget.ErrNoResolver until a kernel
	// with a resolver is constructed.
	Resolver nuget.Resolver
	// ExtensionLoader overrides the default loader (which applies no
	// allow-patterns).
	ExtensionLoader *extensions.Loader
	// Logger receives kernel diagnostics.
	Logger logging.Logger
}

// Kernel translates host commands into engine calls and protocol events.
// Public methods are safe for concurrent use; SubmitCode commands are
// serialized internally so a single evaluation session never sees two
// submissions at once.
type Kernel struct {
	name              string
	sessionID         string
	valueDisplayLimit int

	factory   engine.Factory
	publisher Publisher
	logger    logging.Logger

	restore *nuget.RestoreContext
	loader  *extensions.Loader

	sessionMu sync.Mutex
	session   engine.Session

	// submitMu serializes code submissions; current tracks the envelope a
	// running submission publishes its interleaved output under.
	submitMu sync.Mutex
	current  atomic.Pointer[protocol.CommandEnvelope]

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
}

// New constructs a Kernel with optional overrides.
func New(optFns ...func(o *Options)) (*Kernel, error) {
	opts := Options{
		Name:              "fsharp",
		ValueDisplayLimit: DefaultValueDisplayLimit,
		Publisher:         PublisherFunc(func(protocol.EventEnvelope) {}),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	sessionID := uuid.NewString()
	logger := opts.Logger
	if kl, ok := logger.(*logging.KernelLogger); ok {
		logger = kl.WithComponent("kernel").WithSession(sessionID, "")
	}

	loader := opts.ExtensionLoader
	if loader == nil {
		var err error
		loader, err = extensions.NewLoader(func(o *extensions.LoaderOptions) {
			o.Logger = logger
		})
		if err != nil {
			return nil, fmt.Errorf("create extension loader: %w", err)
		}
	}

	return &Kernel{
		name:              opts.Name,
		sessionID:         sessionID,
		valueDisplayLimit: opts.ValueDisplayLimit,
		factory:           opts.Factory,
		publisher:         opts.Publisher,
		logger:            logger,
		restore:           nuget.NewRestoreContext(opts.Resolver),
		loader:            loader,
		running:           make(map[string]context.CancelFunc),
	}, nil
}

// Name returns the kernel's host-facing name.
func (k *Kernel) Name() string { return k.name }

// Cancel interrupts the in-flight submission identified by its command
// token. The submission terminates with CommandCancelled once the engine
// confirms the interrupt.
func (k *Kernel) Cancel(token string) error {
	k.mu.Lock()
	cancel, ok := k.running[token]
	k.mu.Unlock()

	if !ok {
		return fmt.Errorf("submission %s not found", token)
	}

	cancel()

	return nil
}

// Close tears down the evaluation session and stops accepting commands.
// Safe to call more than once.
func (k *Kernel) Close() error {
	return k.shutdown()
}

func (k *Kernel) shutdown() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	cancels := make([]context.CancelFunc, 0, len(k.running))
	for _, cancel := range k.running {
		cancels = append(cancels, cancel)
	}
	k.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	k.sessionMu.Lock()
	sess := k.session
	k.session = nil
	k.sessionMu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			return fmt.Errorf("close evaluation session: %w", err)
		}
	}

	return nil
}

func (k *Kernel) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

// ensureSession returns the evaluation session, creating it on first use.
// Creation failures are not cached: the next command retries the factory.
func (k *Kernel) ensureSession(ctx context.Context) (engine.Session, error) {
	k.sessionMu.Lock()
	defer k.sessionMu.Unlock()

	if k.session != nil {
		return k.session, nil
	}
	if k.factory == nil {
		return nil, errors.New("no engine factory configured")
	}

	sess, err := k.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("create evaluation session: %w", err)
	}

	if src, ok := sess.(engine.OutputSource); ok {
		src.SetOutputHandler(k.forwardOutput)
	}

	k.session = sess
	k.logger.Info("evaluation session started", "kernel", k.name, "session", k.sessionID)

	return sess, nil
}

// forwardOutput publishes interleaved console output under the envelope of
// the submission that produced it. Output with no running submission is
// dropped; the engine's read loop must never block on us.
func (k *Kernel) forwardOutput(stream engine.OutputStream, text string) {
	env := k.current.Load()
	if env == nil {
		k.logger.Debug("dropping output outside a submission", "stream", stream.String(), "bytes", len(text))
		return
	}

	values := []protocol.FormattedValue{protocol.PlainText(text)}
	switch stream {
	case engine.StreamStderr:
		k.publish(protocol.StandardErrorValueProduced{FormattedValues: values}, env)
	default:
		k.publish(protocol.StandardOutputValueProduced{FormattedValues: values}, env)
	}
}

func (k *Kernel) publish(ev protocol.Event, cause *protocol.CommandEnvelope) {
	env := protocol.NewEventEnvelope(ev, cause)
	k.publisher.PublishEvent(env)
	k.logger.Debug("event published", "eventType", env.EventType, "token", env.Token)
}

func (k *Kernel) succeed(cause *protocol.CommandEnvelope) {
	k.publish(protocol.CommandSucceeded{}, cause)
}

func (k *Kernel) fail(cause *protocol.CommandEnvelope, message string) {
	k.publish(protocol.CommandFailed{Message: message}, cause)
}

func (k *Kernel) cancelled(cause *protocol.CommandEnvelope) {
	k.publish(protocol.CommandCancelled{}, cause)
}

// commandObserver is the optional per-command reporting hook a Logger can
// implement; *logging.KernelLogger does.
type commandObserver interface {
	LogCommand(commandType string, dur time.Duration, success bool, err error)
}

// observeCommand reports one handled command to the logger. Cancellation is
// an outcome the host asked for, so it is never reported as a failure.
func (k *Kernel) observeCommand(env *protocol.CommandEnvelope, dur time.Duration, outcome error) {
	if errors.Is(outcome, context.Canceled) || errors.Is(outcome, context.DeadlineExceeded) {
		k.logger.Info("command cancelled", "commandType", env.CommandType, "token", env.Token, "duration", dur)
		return
	}
	if obs, ok := k.logger.(commandObserver); ok {
		obs.LogCommand(env.CommandType, dur, outcome == nil, outcome)
		return
	}
	k.logger.Debug("command handled", "commandType", env.CommandType, "token", env.Token, "duration", dur, "success", outcome == nil)
}
