package interactive

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krauthaufen/interactive/config"
	"github.com/krauthaufen/interactive/engine"
	"github.com/krauthaufen/interactive/nuget"
	"github.com/krauthaufen/interactive/protocol"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []protocol.EventEnvelope
}

func (p *recordingPublisher) PublishEvent(env protocol.EventEnvelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.envs))
	for i, env := range p.envs {
		out[i] = env.EventType
	}
	return out
}

// scriptedSession is a minimal in-memory engine.Session for façade tests.
type scriptedSession struct {
	mu      sync.Mutex
	handler engine.OutputHandler
	values  map[string]engine.BoundValue

	evalFn  func(ctx context.Context, code string) (*engine.EvalResult, error)
	checkFn func(ctx context.Context, code string) ([]engine.Diagnostic, error)
	declsFn func(ctx context.Context, code string, line, column int) ([]engine.Declaration, error)
}

func newScriptedSession() *scriptedSession {
	return &scriptedSession{values: make(map[string]engine.BoundValue)}
}

func (s *scriptedSession) SetOutputHandler(h engine.OutputHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *scriptedSession) emit(stream engine.OutputStream, text string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(stream, text)
	}
}

func (s *scriptedSession) Eval(ctx context.Context, code string) (*engine.EvalResult, error) {
	if s.evalFn != nil {
		return s.evalFn(ctx, code)
	}
	return &engine.EvalResult{}, nil
}

func (s *scriptedSession) Check(ctx context.Context, code string) ([]engine.Diagnostic, error) {
	if s.checkFn != nil {
		return s.checkFn(ctx, code)
	}
	return nil, nil
}

func (s *scriptedSession) Declarations(ctx context.Context, code string, line, column int) ([]engine.Declaration, error) {
	if s.declsFn != nil {
		return s.declsFn(ctx, code, line, column)
	}
	return nil, nil
}

func (s *scriptedSession) Tooltip(context.Context, string, int, []string) (*engine.Tooltip, error) {
	return nil, nil
}

func (s *scriptedSession) ValueInfos(context.Context) ([]engine.BoundValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.BoundValue, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	return out, nil
}

func (s *scriptedSession) TryGetValue(_ context.Context, name string) (*engine.BoundValue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (s *scriptedSession) SetValue(_ context.Context, name, typeName, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = engine.BoundValue{Name: name, TypeName: typeName, DisplayValue: value}
	return nil
}

func (s *scriptedSession) Close() error { return nil }

var (
	_ engine.Session      = (*scriptedSession)(nil)
	_ engine.OutputSource = (*scriptedSession)(nil)
)

func newFacade(t *testing.T, sess *scriptedSession, optFns ...func(o *Options)) (*Kernel, *recordingPublisher) {
	t.Helper()

	pub := &recordingPublisher{}
	all := append([]func(o *Options){func(o *Options) {
		o.Publisher = pub
		o.Factory = func(context.Context) (engine.Session, error) { return sess, nil }
	}}, optFns...)

	k, err := New(all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })

	return k, pub
}

func TestNew_RequiresEngineCommand(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine command")
}

func TestNew_FromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	content := []byte("kernel:\n  name: fsharp-notebook\nengine:\n  command: dotnet\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	k, err := New(func(o *Options) {
		o.ConfigPath = path
	})
	require.NoError(t, err)
	defer k.Close()

	assert.Equal(t, "fsharp-notebook", k.Name())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Config = &config.Config{
			Engine:  config.EngineConfig{Command: "dotnet"},
			Logging: config.LoggingConfig{Level: "loud"},
		}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestKernel_SubmitCode(t *testing.T) {
	sess := newScriptedSession()
	sess.evalFn = func(context.Context, string) (*engine.EvalResult, error) {
		sess.emit(engine.StreamStdout, "hi\n")
		return &engine.EvalResult{
			Value: &engine.ResultValue{Name: "it", TypeName: "int", DisplayValue: "3"},
		}, nil
	}
	k, pub := newFacade(t, sess)

	res, err := k.SubmitCode(context.Background(), "1 + 2")
	require.NoError(t, err)

	require.NotNil(t, res.Value)
	assert.Equal(t, "3", res.Value.Value)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.False(t, res.Cancelled)
	assert.NotEmpty(t, res.Token)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, protocol.EventTypeCodeSubmissionReceived, res.Events[0].EventType)

	// The host publisher sees the same stream.
	assert.Equal(t, len(res.Events), len(pub.types()))
}

func TestKernel_SubmitCode_Failure(t *testing.T) {
	sess := newScriptedSession()
	sess.evalFn = func(context.Context, string) (*engine.EvalResult, error) {
		res := &engine.EvalResult{
			Diagnostics: []engine.Diagnostic{{
				Line: 1, Column: 0, EndLine: 1, EndColumn: 1,
				Severity: engine.SeverityError, ErrorNumber: 39, Message: "not defined",
			}},
		}
		return res, &engine.ScriptError{Message: "not defined", Err: engine.ErrEvalFailed}
	}
	k, _ := newFacade(t, sess)

	res, err := k.SubmitCode(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FS0039")
	require.NotNil(t, res)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, protocol.SeverityError, res.Diagnostics[0].Severity)
}

func TestKernel_SubmitCode_EvalTimeout(t *testing.T) {
	sess := newScriptedSession()
	sess.evalFn = func(ctx context.Context, _ string) (*engine.EvalResult, error) {
		<-ctx.Done()
		return &engine.EvalResult{Canceled: true}, nil
	}
	k, _ := newFacade(t, sess, func(o *Options) {
		o.Config = &config.Config{
			Engine: config.EngineConfig{
				Command:     "dotnet",
				EvalTimeout: config.Duration(30 * time.Millisecond),
			},
		}
	})

	res, err := k.SubmitCode(context.Background(), "while true do ()")
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
}

func TestKernel_Completions(t *testing.T) {
	sess := newScriptedSession()
	sess.declsFn = func(context.Context, string, int, int) ([]engine.Declaration, error) {
		return []engine.Declaration{{DisplayText: "map", Glyph: engine.GlyphMethod}}, nil
	}
	k, _ := newFacade(t, sess)

	produced, err := k.Completions(context.Background(), "List.ma", protocol.LinePosition{Line: 0, Character: 7})
	require.NoError(t, err)
	require.NotNil(t, produced)
	require.Len(t, produced.Completions, 1)
	assert.Equal(t, "map", produced.Completions[0].DisplayText)
}

func TestKernel_HoverText_NothingUnderPosition(t *testing.T) {
	k, _ := newFacade(t, newScriptedSession())

	hover, err := k.HoverText(context.Background(), "// comment", protocol.LinePosition{Line: 0, Character: 4})
	require.NoError(t, err)
	assert.Nil(t, hover)
}

func TestKernel_Diagnostics_CleanCode(t *testing.T) {
	k, _ := newFacade(t, newScriptedSession())

	diags, err := k.Diagnostics(context.Background(), "let x = 1")
	require.NoError(t, err)
	assert.NotNil(t, diags)
	assert.Empty(t, diags)
}

func TestKernel_ValueRoundTrip(t *testing.T) {
	k, _ := newFacade(t, newScriptedSession())
	ctx := context.Background()

	require.NoError(t, k.SendValue(ctx, "x", "string", protocol.PlainText("hello")))

	infos, err := k.ValueInfos(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "x", infos[0].Name)

	v, err := k.Value(ctx, "x", "")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "hello", v.Value)

	_, err = k.Value(ctx, "ghost", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestKernel_RestorePackages(t *testing.T) {
	resolver := nuget.ResolverFunc(func(_ context.Context, _ []string, refs []nuget.PackageReference) (*nuget.RestoreResult, error) {
		result := &nuget.RestoreResult{}
		for _, ref := range refs {
			result.Resolved = append(result.Resolved, nuget.ResolvedPackage{Name: ref.Name, Version: ref.Version})
		}
		return result, nil
	})

	k, pub := newFacade(t, newScriptedSession(), func(o *Options) {
		o.Resolver = resolver
	})
	ctx := context.Background()

	require.NoError(t, k.AddPackage(ctx, nuget.PackageReference{Name: "FSharp.Data", Version: "6.3.0"}))

	result, err := k.RestorePackages(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success())

	assert.Contains(t, pub.types(), protocol.EventTypePackageAdded)
	require.Len(t, k.ResolvedPackages(), 1)
}

func TestKernel_LoadExtensions(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "charting")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extension.yaml"),
		[]byte("name: charting\nversion: 1.0.0\nscript: extension.fsx\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extension.fsx"),
		[]byte(`printfn "charting ready"`), 0o644))

	k, pub := newFacade(t, newScriptedSession(), func(o *Options) {
		o.Config = &config.Config{
			Engine:     config.EngineConfig{Command: "dotnet"},
			Extensions: config.ExtensionsConfig{Dirs: []string{root}},
		}
	})

	require.NoError(t, k.LoadExtensions(context.Background()))
	assert.Contains(t, pub.types(), protocol.EventTypeKernelExtensionLoaded)
}

func TestKernel_WatchExtensions_DisabledIsNoOp(t *testing.T) {
	k, _ := newFacade(t, newScriptedSession(), func(o *Options) {
		o.Config = &config.Config{
			Engine:     config.EngineConfig{Command: "dotnet"},
			Extensions: config.ExtensionsConfig{Dirs: []string{"/does/not/exist"}},
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, k.WatchExtensions(ctx))
}

func TestKernel_WatchExtensions_HotLoads(t *testing.T) {
	root := t.TempDir()

	k, pub := newFacade(t, newScriptedSession(), func(o *Options) {
		o.Config = &config.Config{
			Engine:     config.EngineConfig{Command: "dotnet"},
			Extensions: config.ExtensionsConfig{Dirs: []string{root}, Watch: true},
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, k.WatchExtensions(ctx))

	dir := filepath.Join(root, "live")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extension.fsx"),
		[]byte(`printfn "live"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extension.yaml"),
		[]byte("name: live\nversion: 0.1.0\nscript: extension.fsx\n"), 0o644))

	require.Eventually(t, func() bool {
		for _, typ := range pub.types() {
			if typ == protocol.EventTypeKernelExtensionLoaded {
				return true
			}
		}
		return false
	}, 5*time.Second, 25*time.Millisecond)
}

func TestKernel_Quit(t *testing.T) {
	k, pub := newFacade(t, newScriptedSession())

	require.NoError(t, k.Quit(context.Background()))
	types := pub.types()
	require.NotEmpty(t, types)
	assert.Equal(t, protocol.EventTypeCommandSucceeded, types[len(types)-1])

	_, err := k.SubmitCode(context.Background(), "1")
	assert.Error(t, err)
}
