package pipeline

import (
	"strings"
	"testing"
)

func TestOperatorConsole_QuitInvokesHook(t *testing.T) {
	ctx := NewContext(1, 1, 10, NewIngressQueue(0, 0))
	quit := false
	c := NewOperatorConsole(ctx, strings.NewReader("q\n"), OperatorHooks{
		Quit: func() { quit = true },
	})
	c.Run()
	if !quit {
		t.Fatalf("expected q command to invoke the quit hook")
	}
}

func TestOperatorConsole_PauseTogglesManualPause(t *testing.T) {
	ctx := NewContext(1, 1, 10, NewIngressQueue(0, 0))
	c := NewOperatorConsole(ctx, strings.NewReader("p\np\n"), OperatorHooks{})
	c.Run()
	if ctx.ManualPauseActive() {
		t.Fatalf("expected two toggles to return manual pause to inactive")
	}
}

func TestOperatorConsole_UnrecognizedCommandDoesNotPanic(t *testing.T) {
	ctx := NewContext(1, 1, 10, NewIngressQueue(0, 0))
	c := NewOperatorConsole(ctx, strings.NewReader("z\n"), OperatorHooks{})
	c.Run()
}

func TestOperatorConsole_StopsWhenContextStopped(t *testing.T) {
	ctx := NewContext(1, 1, 10, NewIngressQueue(0, 0))
	ctx.Stop()
	called := false
	c := NewOperatorConsole(ctx, strings.NewReader("s\ns\ns\n"), OperatorHooks{
		Status: func() string { called = true; return "" },
	})
	c.Run()
	if called {
		t.Fatalf("expected console to stop dispatching once the context is stopped")
	}
}
