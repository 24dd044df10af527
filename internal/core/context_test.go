package core

import "testing"

func TestNewContextWiresSharedTimerRoot(t *testing.T) {
	ctx := New(Config{})
	if ctx.Timers == nil {
		t.Fatalf("Timers not initialized")
	}
	if ctx.Sessions == nil || ctx.Traffic == nil || ctx.L2TP == nil {
		t.Fatalf("core subsystems not wired")
	}
}

func TestContextStartStopTogglesRunning(t *testing.T) {
	ctx := New(Config{})
	if ctx.Running {
		t.Fatalf("Running true before Start")
	}
	ctx.Start()
	if !ctx.Running {
		t.Fatalf("Running false after Start")
	}
	ctx.Stop()
	if ctx.Running {
		t.Fatalf("Running true after Stop")
	}
}

func TestContextInterfaceRegistryLookup(t *testing.T) {
	ctx := New(Config{})
	if _, ok := ctx.Interface("eth0"); ok {
		t.Fatalf("unexpected interface found before registration")
	}
	if len(ctx.Interfaces()) != 0 {
		t.Fatalf("Interfaces() not empty on a fresh context")
	}
}
