package backend

import (
	"slices"
	"testing"
)

func TestCaptureRegisteredOnImport(t *testing.T) {
	if !IsRegistered(BackendCapture) {
		t.Fatal("capture backend not registered on import")
	}
	if !slices.Contains(Available(), BackendCapture) {
		t.Errorf("Available() = %v, missing capture", Available())
	}
}

func TestGet(t *testing.T) {
	b := Get(BackendCapture)
	if b == nil {
		t.Fatal("Get(capture) returned nil")
	}
	if b.Name() != BackendCapture {
		t.Errorf("Name() = %q, want %q", b.Name(), BackendCapture)
	}
	if Get("nonexistent") != nil {
		t.Error("Get(nonexistent) should return nil")
	}
}

func TestDefaultFallsBackToCapture(t *testing.T) {
	// Without GPU backends configured, capture is the default.
	b := Default()
	if b == nil {
		t.Fatal("Default() returned nil")
	}
}

func TestRegisterUnregister(t *testing.T) {
	Register("test-backend", func() Backend {
		return NewCaptureBackend()
	})
	if !IsRegistered("test-backend") {
		t.Error("registered backend not found")
	}
	Unregister("test-backend")
	if IsRegistered("test-backend") {
		t.Error("unregistered backend still found")
	}
}

func TestInitDefault(t *testing.T) {
	b, err := InitDefault()
	if err != nil {
		t.Fatalf("InitDefault() error = %v", err)
	}
	defer b.Close()
}

func TestMustDefault(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustDefault() panicked: %v", r)
		}
	}()
	if MustDefault() == nil {
		t.Error("MustDefault() returned nil")
	}
}
