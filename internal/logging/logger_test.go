package logging

import "testing"

func TestGetBeforeInitialize(t *testing.T) {
	// Must never panic or return nil.
	l := Get(CategoryPipeline)
	if l == nil {
		t.Fatal("Get returned nil before Initialize")
	}
	l.Info("noop")
}

func TestInitializeAndGet(t *testing.T) {
	if err := Initialize(Options{Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	l := Get(CategoryAPI)
	if l == nil {
		t.Fatal("Get returned nil after Initialize")
	}

	// Same category returns the cached logger.
	if Get(CategoryAPI) != l {
		t.Error("expected cached logger for repeated Get")
	}
}

func TestDisabledCategory(t *testing.T) {
	err := Initialize(Options{
		Level:      "info",
		Categories: map[string]bool{"render": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if Get(CategoryRender) != nop {
		t.Error("disabled category should return the nop logger")
	}
	if Get(CategoryServer) == nop {
		t.Error("unlisted category should be enabled")
	}
}

func TestInvalidLevel(t *testing.T) {
	if err := Initialize(Options{Level: "shouty"}); err == nil {
		t.Error("expected error for invalid level")
	}
}
