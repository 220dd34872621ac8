package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"animagen/internal/llm"
	"animagen/internal/logging"
	"animagen/internal/render"
)

// videoPathPattern matches an absolute .mp4 path in manim's output.
var videoPathPattern = regexp.MustCompile(`([A-Za-z]:)?[/\\][^\s]+\.mp4`)

// ExecutorConfig tunes the manim subprocess runner.
type ExecutorConfig struct {
	Python         string
	OutputDir      string
	Timeout        time.Duration
	MaxOutputBytes int64
	BaseTempDir    string
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Python:         "python",
		OutputDir:      "videos",
		Timeout:        300 * time.Second,
		MaxOutputBytes: 1 << 20,
		BaseTempDir:    filepath.Join(os.TempDir(), "manim-server"),
	}
}

// Executor renders Manim scenes by invoking the manim CLI in a per-run
// scratch directory and copying the finished video into OutputDir.
type Executor struct {
	cfg ExecutorConfig
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Python == "" {
		cfg.Python = "python"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 1 << 20
	}
	if cfg.BaseTempDir == "" {
		cfg.BaseTempDir = filepath.Join(os.TempDir(), "manim-server")
	}
	return &Executor{cfg: cfg}
}

// Render executes one scene. Failures are reported in the payload, never as
// an error: the caller forwards stderr to the fix pass as-is.
func (e *Executor) Render(ctx context.Context, args render.RenderArguments) render.RenderPayload {
	log := logging.Get(logging.CategoryRender)

	runID := fmt.Sprintf("%d_%s", time.Now().Unix(), strings.Split(uuid.NewString(), "-")[0])
	runDir := filepath.Join(e.cfg.BaseTempDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return render.RenderPayload{Stderr: "failed to create scratch directory: " + err.Error()}
	}
	defer os.RemoveAll(runDir)

	scriptPath := filepath.Join(runDir, "scene_script.py")
	if err := os.WriteFile(scriptPath, []byte(args.Code), 0o644); err != nil {
		return render.RenderPayload{Stderr: "failed to write script: " + err.Error()}
	}

	sceneName := args.SceneName
	if sceneName == "" {
		sceneName = llm.ExtractSceneName(args.Code)
	}
	if sceneName == "" {
		sceneName = "Scene"
	}

	cmdArgs := []string{
		"-m", "manim",
		qualityFlag(args.Quality),
		"--renderer", "cairo",
		"--disable_caching",
		"--progress_bar", "none",
		scriptPath,
		sceneName,
	}

	log.Infof("run %s: %s %s", runID, e.cfg.Python, strings.Join(cmdArgs, " "))

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.cfg.Python, cmdArgs...)
	cmd.Dir = runDir
	cmd.Env = append(os.Environ(),
		"PYTHONUNBUFFERED=1",
		"PYTHONIOENCODING=utf-8",
		"TERM=dumb",
		"NO_COLOR=1",
	)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, max: e.cfg.MaxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, max: e.cfg.MaxOutputBytes}

	start := time.Now()
	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	if execCtx.Err() == context.DeadlineExceeded {
		msg := fmt.Sprintf("manim execution timed out after %s", e.cfg.Timeout)
		log.Warnf("run %s: %s", runID, msg)
		return render.RenderPayload{Stdout: stdout, Stderr: msg}
	}

	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			// Process never ran (missing python, bad path).
			log.Errorf("run %s: failed to start manim: %v", runID, runErr)
			return render.RenderPayload{Stdout: stdout, Stderr: "failed to start manim: " + runErr.Error()}
		}
		log.Warnf("run %s: manim exited non-zero after %v", runID, time.Since(start))
		if stderr == "" {
			stderr = stdout
		}
		return render.RenderPayload{Stdout: stdout, Stderr: stderr}
	}

	videoPath := findVideo(stdout+"\n"+stderr, sceneName, runDir)
	if videoPath == "" {
		log.Warnf("run %s: manim succeeded but no video was found", runID)
		return render.RenderPayload{Stdout: stdout, Stderr: "manim completed but produced no video file"}
	}

	finalPath, err := e.collectVideo(videoPath, runID, sceneName)
	if err != nil {
		log.Errorf("run %s: failed to collect video: %v", runID, err)
		return render.RenderPayload{Stdout: stdout, Stderr: "failed to collect video: " + err.Error()}
	}

	log.Infof("run %s: rendered %s in %v -> %s", runID, sceneName, time.Since(start), finalPath)
	return render.RenderPayload{Success: true, VideoPath: finalPath, Stdout: stdout}
}

// collectVideo moves the rendered file out of the scratch directory into the
// served output directory under a unique name.
func (e *Executor) collectVideo(videoPath, runID, sceneName string) (string, error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}

	finalPath := filepath.Join(e.cfg.OutputDir, fmt.Sprintf("%s_%s.mp4", runID, sceneName))
	src, err := os.Open(videoPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(finalPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(finalPath)
		return "", err
	}
	return finalPath, nil
}

// qualityFlag maps a quality level to manim's CLI flag.
func qualityFlag(quality string) string {
	switch strings.ToLower(quality) {
	case "low":
		return "-ql"
	case "high":
		return "-qh"
	default:
		return "-qm"
	}
}

// findVideo locates the rendered mp4: first from paths printed in manim's
// output, then by searching the scratch media tree.
func findVideo(combinedOutput, sceneName, runDir string) string {
	for _, line := range strings.Split(combinedOutput, "\n") {
		if !strings.Contains(line, ".mp4") {
			continue
		}
		if match := videoPathPattern.FindString(line); match != "" {
			candidate := filepath.FromSlash(strings.ReplaceAll(match, "\\", "/"))
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}

	mediaRoot := filepath.Join(runDir, "media", "videos")
	if exact := searchVideos(mediaRoot, sceneName+".mp4"); exact != "" {
		return exact
	}
	return searchVideos(mediaRoot, "")
}

// searchVideos walks root for mp4 files. With a name, the first exact match
// wins; without one, the most recently modified mp4 does.
func searchVideos(root, name string) string {
	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate

	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if name != "" {
			if d.Name() == name {
				candidates = append(candidates, candidate{path: path})
				return filepath.SkipAll
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".mp4") {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			candidates = append(candidates, candidate{path: path, modTime: info.ModTime()})
		}
		return nil
	})

	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	return candidates[0].path
}

// limitedWriter caps captured output, discarding the overflow.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.max {
		lw.truncated = true
		return len(p), nil
	}
	remaining := lw.max - lw.written
	toWrite := p
	if int64(len(p)) > remaining {
		toWrite = p[:remaining]
		lw.truncated = true
	}
	n, err := lw.w.Write(toWrite)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
