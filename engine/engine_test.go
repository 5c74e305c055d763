package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptError_Classification(t *testing.T) {
	inner := errors.New("boom")
	err := &ScriptError{Message: "The value 'x' is not defined", Line: 3, Column: 8, Err: inner}

	assert.True(t, errors.Is(err, ErrEvalFailed))
	assert.True(t, errors.Is(err, inner))
	assert.False(t, errors.Is(err, ErrSessionClosed))

	var scriptErr *ScriptError
	require.True(t, errors.As(fmt.Errorf("eval: %w", err), &scriptErr))
	assert.Equal(t, 3, scriptErr.Line)
}

func TestScriptError_Message(t *testing.T) {
	withPos := &ScriptError{Message: "type mismatch", Line: 2, Column: 4}
	assert.Equal(t, "type mismatch (line 2, col 4)", withPos.Error())

	noPos := &ScriptError{Message: "type mismatch"}
	assert.Equal(t, "type mismatch", noPos.Error())
}

func TestDiagnostic_Code(t *testing.T) {
	d := Diagnostic{ErrorNumber: 39}
	assert.Equal(t, "FS0039", d.Code())

	d.ErrorNumber = 1182
	assert.Equal(t, "FS1182", d.Code())

	d.ErrorNumber = 0
	assert.Equal(t, "", d.Code())
}

func TestOutputStream_String(t *testing.T) {
	assert.Equal(t, "stdout", StreamStdout.String())
	assert.Equal(t, "stderr", StreamStderr.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
}
