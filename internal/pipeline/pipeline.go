package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"animagen/internal/llm"
	"animagen/internal/logging"
	"animagen/internal/render"
)

// Validator checks a generated script before it is sent for execution.
type Validator interface {
	Validate(ctx context.Context, code string) error
}

// Config tunes one loop instance.
type Config struct {
	MaxAttempts   int
	Quality       string
	Resolution    string
	DisableRefine bool
	DisableSafety bool
}

// Loop coordinates the code generator and the execution gateway across
// bounded retries. One Loop may serve many requests; all per-request state
// lives in the Result.
type Loop struct {
	generator llm.Client
	renderer  render.Renderer
	validator Validator
	cfg       Config
}

// New creates a loop with explicit dependencies.
func New(generator llm.Client, renderer render.Renderer, validator Validator, cfg Config) (*Loop, error) {
	if generator == nil {
		return nil, &ConfigurationError{Message: "code generator is required"}
	}
	if renderer == nil {
		return nil, &ConfigurationError{Message: "renderer is required"}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Quality == "" {
		cfg.Quality = "medium"
	}
	return &Loop{
		generator: generator,
		renderer:  renderer,
		validator: validator,
		cfg:       cfg,
	}, nil
}

// Run executes the correction loop for one request. The returned Result
// always carries a terminal status; the error return is reserved for invalid
// input, never for generation or render failures.
func (l *Loop) Run(ctx context.Context, req Request, observe Observer) (*Result, error) {
	log := logging.Get(logging.CategoryPipeline)

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &ConfigurationError{Message: "prompt must not be empty"}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if observe == nil {
		observe = func(Event) {}
	}

	result := &Result{Request: req, Status: StatusRunning}
	log.Infof("run %s: starting, max_attempts=%d", req.ID, l.cfg.MaxAttempts)

	// Refine pass. A failed refine falls back to the raw prompt unless the
	// failure is fatal, in which case it is recorded as attempt 1.
	if !l.cfg.DisableRefine {
		observe(Event{Stage: "refining", Message: "planning storyboard"})
		storyboard, err := l.generator.Refine(ctx, req.Prompt)
		switch {
		case err == nil:
			result.Storyboard = storyboard
		case isFatal(err):
			log.Errorf("run %s: fatal refine failure: %v", req.ID, err)
			l.recordFailure(result, 1, nil, err.Error(), 0)
			l.finish(result, StatusFailedFatal, err.Error(), observe)
			return result, nil
		default:
			log.Warnf("run %s: refine failed, using raw prompt: %v", req.ID, err)
		}
	}

	llmReq := llm.Request{Prompt: req.Prompt, Storyboard: result.Storyboard}

	var (
		lastScene  *llm.SceneCode
		lastDetail string
	)

	for seq := 1; seq <= l.cfg.MaxAttempts; seq++ {
		start := time.Now()

		scene, err := l.generate(ctx, llmReq, seq, lastScene, lastDetail, observe)
		if err != nil {
			detail := err.Error()
			l.recordFailure(result, seq, nil, detail, time.Since(start))
			if isFatal(err) {
				log.Errorf("run %s: fatal generation failure on attempt %d: %v", req.ID, seq, err)
				l.finish(result, StatusFailedFatal, detail, observe)
				return result, nil
			}
			log.Warnf("run %s: generation failed on attempt %d: %v", req.ID, seq, err)
			lastDetail = detail
			continue
		}
		lastScene = scene

		if l.validator != nil && !l.cfg.DisableSafety {
			observe(Event{Stage: "validating", Attempt: seq, Message: "checking generated script"})
			if err := l.validator.Validate(ctx, scene.Code); err != nil {
				detail := err.Error()
				l.recordFailure(result, seq, scene, detail, time.Since(start))
				log.Warnf("run %s: attempt %d rejected by safety check: %v", req.ID, seq, err)
				lastDetail = detail
				continue
			}
		}

		sceneName := scene.SceneName
		if sceneName == "" {
			sceneName = "Scene"
		}

		observe(Event{Stage: "rendering", Attempt: seq, Message: fmt.Sprintf("rendering scene %s", sceneName)})
		renderResult, err := l.renderer.Render(ctx, render.Request{
			Code:       scene.Code,
			SceneName:  sceneName,
			Quality:    l.cfg.Quality,
			Resolution: l.cfg.Resolution,
		})
		if err != nil {
			detail := render.Diagnostic(err)
			l.recordFailure(result, seq, scene, detail, time.Since(start))
			if isFatal(err) {
				log.Errorf("run %s: fatal render failure on attempt %d: %v", req.ID, seq, err)
				l.finish(result, StatusFailedFatal, detail, observe)
				return result, nil
			}
			log.Warnf("run %s: attempt %d failed to render: %v", req.ID, seq, err)
			lastDetail = detail
			continue
		}

		result.Attempts = append(result.Attempts, Attempt{
			Seq:       seq,
			Code:      scene.Code,
			SceneName: sceneName,
			Outcome:   OutcomeSuccess,
			Duration:  time.Since(start),
		})
		result.VideoPath = renderResult.VideoPath
		l.finish(result, StatusSucceeded, "", observe)
		log.Infof("run %s: succeeded on attempt %d -> %s", req.ID, seq, result.VideoPath)
		return result, nil
	}

	l.finish(result, StatusFailedExhausted, exhaustedMessage(l.cfg.MaxAttempts, lastDetail), observe)
	log.Warnf("run %s: exhausted after %d attempts", req.ID, l.cfg.MaxAttempts)
	return result, nil
}

// generate produces the attempt's candidate script: a fresh generation for
// the first attempt, a fix pass carrying the prior code and diagnostic after
// a failure. A failure with no surviving code falls back to fresh generation.
func (l *Loop) generate(ctx context.Context, req llm.Request, seq int, prior *llm.SceneCode, lastDetail string, observe Observer) (*llm.SceneCode, error) {
	if prior == nil || lastDetail == "" {
		observe(Event{Stage: "generating", Attempt: seq, Message: "generating scene code"})
		return l.generator.GenerateScene(ctx, req)
	}
	observe(Event{Stage: "fixing", Attempt: seq, Message: "repairing failed scene"})
	return l.generator.FixScene(ctx, req, prior, lastDetail)
}

func (l *Loop) recordFailure(result *Result, seq int, scene *llm.SceneCode, detail string, elapsed time.Duration) {
	attempt := Attempt{
		Seq:         seq,
		Outcome:     OutcomeFailure,
		ErrorDetail: detail,
		Duration:    elapsed,
	}
	if scene != nil {
		attempt.Code = scene.Code
		attempt.SceneName = scene.SceneName
	}
	result.Attempts = append(result.Attempts, attempt)
}

func (l *Loop) finish(result *Result, status Status, finalError string, observe Observer) {
	result.Status = status
	result.FinalError = finalError
	if status != StatusSucceeded {
		if last := result.LastAttempt(); last != nil && finalError == "" {
			result.FinalError = last.ErrorDetail
		}
	}
	observe(Event{Stage: "done", Attempt: len(result.Attempts), Message: string(status)})
}
