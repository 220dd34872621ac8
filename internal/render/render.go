// Package render executes generated Manim scripts through the rendering
// gateway and reports the outcome back to the correction loop.
package render

import (
	"context"
	"errors"
)

// Request describes one scene to render.
type Request struct {
	Code       string
	SceneName  string
	Quality    string // low, medium, high
	Resolution string
}

// Result is the outcome of one render.
type Result struct {
	Success   bool
	VideoPath string
	Stdout    string
	Stderr    string
}

// Renderer executes Manim scripts.
type Renderer interface {
	// Render executes a scene. A failed render returns an *ExecutionError
	// whose diagnostic is suitable for feeding back to the fix pass.
	Render(ctx context.Context, req Request) (*Result, error)
}

// ExecutionError reports a render that ran but failed. The diagnostic is the
// renderer's stderr (or stdout fallback) passed through unmodified so the fix
// pass sees exactly what the toolchain said.
type ExecutionError struct {
	Diagnostic string
}

func (e *ExecutionError) Error() string {
	return "manim execution failed: " + e.Diagnostic
}

// Diagnostic extracts the raw failure output from a render error, or the
// error text when it is not an execution failure.
func Diagnostic(err error) string {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Diagnostic
	}
	return err.Error()
}
