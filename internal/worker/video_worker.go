// Package worker runs the generation pipeline for queued video jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promptmotion/api/internal/client"
	"github.com/promptmotion/api/internal/model"
	"github.com/promptmotion/api/internal/render"
	"github.com/promptmotion/api/internal/service"
	"github.com/promptmotion/api/internal/storage"
	"github.com/promptmotion/api/internal/store"
	"github.com/promptmotion/api/internal/websocket"
)

// Stage interfaces; the services implement them and tests substitute fakes.

// SceneDecomposer splits a prompt into ordered scene briefs.
type SceneDecomposer interface {
	Decompose(ctx context.Context, prompt string) ([]model.Scene, error)
}

// CodeSynthesizer produces validated scene code, optionally correcting a
// prior failure.
type CodeSynthesizer interface {
	Synthesize(ctx context.Context, scenePrompt string, rc *service.RepairContext) (string, error)
}

// SceneRenderer turns scene code into a video artifact path.
type SceneRenderer interface {
	Render(ctx context.Context, code, outputDir, sceneClass string) (string, error)
}

// AudioAugmenter rewrites scene code with narration.
type AudioAugmenter interface {
	Augment(ctx context.Context, code string) (string, error)
}

// Configured reports whether an upstream client has credentials.
type Configured interface {
	IsConfigured() bool
}

const terminalFailureMessage = "Failed to generate video after multiple attempts"

// VideoWorker executes one video job end to end: decompose the prompt,
// synthesize and render each scene, attempt narration, publish the last
// rendered scene. Partial progress is kept; a job only fails when no scene
// at all produced an artifact across the outer attempt budget.
type VideoWorker struct {
	store   store.JobStore
	staging *storage.Staging
	hub     *websocket.Hub

	gemini  Configured
	codegen Configured

	scenes   SceneDecomposer
	synth    CodeSynthesizer
	renderer SceneRenderer
	audio    AudioAugmenter

	// Uploader mirrors the published asset to object storage when set.
	Uploader client.StorageClient

	OverallAttempts   int
	SceneAttempts     int
	OverallRetryDelay time.Duration
	SceneRetryDelay   time.Duration
}

// NewVideoWorker wires a worker with production budgets. hub may be nil.
func NewVideoWorker(
	jobStore store.JobStore,
	staging *storage.Staging,
	hub *websocket.Hub,
	gemini, codegen Configured,
	scenes SceneDecomposer,
	synth CodeSynthesizer,
	renderer SceneRenderer,
	audio AudioAugmenter,
) *VideoWorker {
	return &VideoWorker{
		store:             jobStore,
		staging:           staging,
		hub:               hub,
		gemini:            gemini,
		codegen:           codegen,
		scenes:            scenes,
		synth:             synth,
		renderer:          renderer,
		audio:             audio,
		OverallAttempts:   5,
		SceneAttempts:     5,
		OverallRetryDelay: 5 * time.Second,
		SceneRetryDelay:   3 * time.Second,
	}
}

// ProcessTask is the asynq entry point. Job failures are recorded in the
// store rather than returned, so the queue never re-runs a failed job on
// its own schedule.
func (w *VideoWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.VideoJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	w.Run(ctx, payload.JobID, payload.Prompt)
	return nil
}

// Run drives the whole pipeline for one job and writes the terminal record.
func (w *VideoWorker) Run(ctx context.Context, jobID, prompt string) {
	log.Printf("Starting video job %s", jobID)

	for attempt := 0; attempt < w.OverallAttempts; attempt++ {
		if ctx.Err() != nil {
			w.markError(ctx, jobID, terminalFailureMessage)
			return
		}
		log.Printf("Job %s overall attempt %d of %d", jobID, attempt+1, w.OverallAttempts)

		if !w.gemini.IsConfigured() || !w.codegen.IsConfigured() {
			log.Printf("Job %s: upstream clients are not configured", jobID)
			w.sleepOverall(ctx, attempt)
			continue
		}

		videoPath, err := w.runAttempt(ctx, jobID, prompt)
		if err == nil {
			w.markSuccess(ctx, jobID, videoPath)
			return
		}
		log.Printf("Job %s attempt %d failed: %v", jobID, attempt+1, err)
		w.sleepOverall(ctx, attempt)
	}

	w.markError(ctx, jobID, terminalFailureMessage)
}

// runAttempt is one full pass over the pipeline. It succeeds when at least
// one scene rendered; the published asset is the last scene that did.
func (w *VideoWorker) runAttempt(ctx context.Context, jobID, prompt string) (string, error) {
	w.progress(jobID, "decomposing prompt into scenes")
	scenes, err := w.scenes.Decompose(ctx, prompt)
	if err != nil {
		return "", err
	}
	log.Printf("Job %s: plan has %d scenes", jobID, len(scenes))

	jobDir, err := w.staging.JobDir(jobID)
	if err != nil {
		return "", err
	}

	lastArtifact := ""
	for i, scene := range scenes {
		result, err := w.runScene(ctx, jobID, jobDir, i+1, scene)
		if err != nil {
			log.Printf("Job %s: scene %d abandoned: %v", jobID, i+1, err)
			continue
		}
		lastArtifact = result.RenderPath
	}

	if lastArtifact == "" {
		return "", errors.New("no scene produced a video")
	}

	w.progress(jobID, "publishing video")
	published, err := w.staging.Publish(lastArtifact)
	if err != nil {
		return "", fmt.Errorf("failed to publish video: %w", err)
	}
	if err := w.staging.CleanJobDir(jobID); err != nil {
		log.Printf("Job %s: failed to clean work dir: %v", jobID, err)
	}
	w.mirror(ctx, jobID, published)
	return published, nil
}

// mirror copies the published asset to object storage. Failures are logged
// only; the local asset is already the job's result.
func (w *VideoWorker) mirror(ctx context.Context, jobID, path string) {
	if w.Uploader == nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		log.Printf("Job %s: failed to open asset for upload: %v", jobID, err)
		return
	}
	defer f.Close()

	key := fmt.Sprintf("videos/%s.mp4", jobID)
	url, err := w.Uploader.Upload(ctx, key, f, "video/mp4")
	if err != nil {
		log.Printf("Job %s: failed to upload asset: %v", jobID, err)
		return
	}
	log.Printf("Job %s: asset mirrored to %s", jobID, url)
}

// runScene synthesizes and renders one scene, then tries narration once.
// A failed render feeds the code and a diagnostic into the next synthesis
// attempt; narration failure keeps the silent artifact.
func (w *VideoWorker) runScene(ctx context.Context, jobID, jobDir string, n int, scene model.Scene) (model.SceneAttemptResult, error) {
	w.progress(jobID, fmt.Sprintf("rendering scene %d", n))

	var rc *service.RepairContext
	for attempt := 0; attempt < w.SceneAttempts; attempt++ {
		if ctx.Err() != nil {
			return model.SceneAttemptResult{}, ctx.Err()
		}
		log.Printf("Job %s: scene %d attempt %d of %d", jobID, n, attempt+1, w.SceneAttempts)

		code, err := w.synth.Synthesize(ctx, scene.Prompt(), rc)
		if err != nil {
			log.Printf("Job %s: scene %d synthesis failed: %v", jobID, n, err)
			w.sleepScene(ctx, attempt)
			continue
		}

		artifact, err := w.renderer.Render(ctx, code, jobDir, render.DetectSceneClass(code))
		if err != nil {
			log.Printf("Job %s: scene %d render failed: %v", jobID, n, err)
			rc = &service.RepairContext{
				PreviousCode: code,
				Diagnostic:   "The code compiled but the renderer could not produce a video from it. Generate a simpler version of the scene.",
			}
			w.sleepScene(ctx, attempt)
			continue
		}

		path, narrated := w.tryNarration(ctx, jobID, jobDir, n, code, artifact)
		return model.SceneAttemptResult{
			SceneIndex:   n,
			Code:         code,
			RenderPath:   path,
			AudioApplied: narrated,
		}, nil
	}

	return model.SceneAttemptResult{}, fmt.Errorf("scene attempts exhausted")
}

// tryNarration upgrades a rendered scene with narration, reporting whether
// the narrated render replaced the silent one. Any failure along the way
// returns the silent artifact unchanged.
func (w *VideoWorker) tryNarration(ctx context.Context, jobID, jobDir string, n int, code, silent string) (string, bool) {
	w.progress(jobID, fmt.Sprintf("adding narration to scene %d", n))

	narrated, err := w.audio.Augment(ctx, code)
	if err != nil {
		log.Printf("Job %s: scene %d narration failed, keeping silent render: %v", jobID, n, err)
		return silent, false
	}

	artifact, err := w.renderer.Render(ctx, narrated, jobDir, render.DetectSceneClass(narrated))
	if err != nil {
		log.Printf("Job %s: scene %d narrated render failed, keeping silent render: %v", jobID, n, err)
		return silent, false
	}
	return artifact, true
}

func (w *VideoWorker) markSuccess(ctx context.Context, jobID, videoPath string) {
	job := w.loadJob(ctx, jobID)
	job.Status = model.JobStatusSuccess
	job.Message = "Video generated successfully"
	job.VideoPath = videoPath
	if err := w.store.Save(ctx, job); err != nil {
		log.Printf("Job %s: failed to record success: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastComplete(jobID, videoPath)
	}
	log.Printf("Job %s completed: %s", jobID, videoPath)
}

func (w *VideoWorker) markError(ctx context.Context, jobID, message string) {
	job := w.loadJob(ctx, jobID)
	job.Status = model.JobStatusError
	job.Message = message
	if err := w.store.Save(ctx, job); err != nil {
		log.Printf("Job %s: failed to record failure: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastError(jobID, "GENERATION_FAILED", message)
	}
	log.Printf("Job %s failed: %s", jobID, message)
}

// loadJob fetches the existing record so terminal updates keep the
// original creation time; an expired record gets a fresh one.
func (w *VideoWorker) loadJob(ctx context.Context, jobID string) *model.Job {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		return &model.Job{ID: jobID, CreatedAt: time.Now()}
	}
	return job
}

func (w *VideoWorker) progress(jobID, stage string) {
	if w.hub != nil {
		w.hub.BroadcastProgress(jobID, stage)
	}
}

func (w *VideoWorker) sleepOverall(ctx context.Context, attempt int) {
	if attempt >= w.OverallAttempts-1 {
		return
	}
	select {
	case <-time.After(w.OverallRetryDelay):
	case <-ctx.Done():
	}
}

func (w *VideoWorker) sleepScene(ctx context.Context, attempt int) {
	if attempt >= w.SceneAttempts-1 {
		return
	}
	select {
	case <-time.After(w.SceneRetryDelay):
	case <-ctx.Done():
	}
}
