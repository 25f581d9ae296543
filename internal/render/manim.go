// Package render drives the external manim subprocess that turns validated
// scene code into a video artifact.
package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/promptmotion/api/internal/repair"
)

// ErrExhausted is returned when no artifact was produced within the retry
// budget. The scene loop treats it as a scene skip, not a job failure.
var ErrExhausted = errors.New("render attempts exhausted")

// errNoArtifact marks a zero-exit run that produced no video file. The
// repair rules key off renderer failures and must not fire for it.
var errNoArtifact = errors.New("renderer produced no artifact")

var sceneClassRe = regexp.MustCompile(`class\s+(\w+)\s*\(\s*(?:VoiceoverScene|Scene)\s*\)`)

// Renderer invokes manim on staged code and applies the known
// parameter-rename repairs when a failure matches their signatures.
// External renderers are noisy and version-sensitive; a small fixed table
// of keyword swaps recovers a large share of failures far cheaper than
// re-synthesizing the code.
type Renderer struct {
	Binary     string
	Quality    string // quality flag suffix, "ql" renders as -pql
	MaxRetries int
	RetryDelay time.Duration

	rules []repair.Rule
}

// NewRenderer creates a renderer with the production retry budget.
func NewRenderer(binary, quality string, maxRetries int) *Renderer {
	if binary == "" {
		binary = "manim"
	}
	if quality == "" {
		quality = "ql"
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Renderer{
		Binary:     binary,
		Quality:    quality,
		MaxRetries: maxRetries,
		RetryDelay: 2 * time.Second,
		rules:      repair.RenderRules,
	}
}

// Render stages code under outputDir, runs manim against it and returns the
// path of the newest produced artifact. sceneClass may be empty; it is then
// detected from the code, and when detection fails the tool default is used.
// Failed attempts consult the repair rule table; the last attempt falls back
// to the original unmodified code when no rule matched along the way.
func (r *Renderer) Render(ctx context.Context, code, outputDir, sceneClass string) (string, error) {
	original := code

	for attempt := 0; attempt < r.MaxRetries; attempt++ {
		log.Printf("Manim render attempt %d of %d", attempt+1, r.MaxRetries)

		artifact, diagnostic, err := r.renderOnce(ctx, code, outputDir, sceneClass)
		if err == nil {
			return artifact, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("Manim render failed: %v", err)

		if errors.Is(err, errNoArtifact) {
			// The run itself succeeded, so nothing implicates the code;
			// retry it untouched.
		} else if rule := repair.Match(r.rules, code, diagnostic, attempt); rule != nil {
			log.Printf("Applying repair rule %q and retrying", rule.Name)
			code = rule.Apply(code)
		} else if attempt == r.MaxRetries-2 && code != original {
			// Nothing matched; give the untouched code one last run.
			log.Printf("Reverting to original code for final attempt")
			code = original
		}

		if attempt < r.MaxRetries-1 {
			time.Sleep(r.RetryDelay)
		}
	}

	return "", ErrExhausted
}

// DetectSceneClass finds the entry-point scene class declared in code.
// Returns "" when none is declared.
func DetectSceneClass(code string) string {
	m := sceneClassRe.FindStringSubmatch(code)
	if m == nil {
		return ""
	}
	return m[1]
}

func (r *Renderer) renderOnce(ctx context.Context, code, outputDir, sceneClass string) (artifact, diagnostic string, err error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output dir: %w", err)
	}

	sceneFile := filepath.Join(outputDir, "scene.py")
	if err := os.WriteFile(sceneFile, []byte(code), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to stage scene file: %w", err)
	}

	if sceneClass == "" {
		sceneClass = DetectSceneClass(code)
		if sceneClass != "" {
			log.Printf("Detected scene class: %s", sceneClass)
		} else {
			log.Printf("Could not determine scene class, using tool default")
		}
	}

	args := []string{"-" + r.Quality, "--media_dir", outputDir, sceneFile}
	if sceneClass != "" {
		args = append(args, sceneClass)
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("failed to start %s: %w", r.Binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "File ready at") {
			log.Printf("Renderer output: %s", strings.TrimSpace(line))
		}
	}

	if err := cmd.Wait(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return "", diag, fmt.Errorf("%s exited: %w", r.Binary, err)
	}

	latest, err := newestArtifact(outputDir)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errNoArtifact, err)
	}
	return latest, "", nil
}

// newestArtifact walks dir for produced .mp4 files and returns the most
// recently modified one. The renderer writes partial clips before the final
// cut, so newest-wins selects the assembled video.
func newestArtifact(dir string) (string, error) {
	var (
		newest     string
		newestTime time.Time
	)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = path
			newestTime = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan output dir: %w", err)
	}
	if newest == "" {
		return "", fmt.Errorf("no video files found in %s", dir)
	}
	return newest, nil
}
