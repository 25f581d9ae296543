package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptmotion/api/internal/model"
	"github.com/promptmotion/api/internal/service"
	"github.com/promptmotion/api/internal/storage"
	"github.com/promptmotion/api/internal/store"
)

type configuredFlag bool

func (c configuredFlag) IsConfigured() bool { return bool(c) }

type fakeDecomposer struct {
	scenes []model.Scene
	err    error
}

func (f *fakeDecomposer) Decompose(context.Context, string) ([]model.Scene, error) {
	return f.scenes, f.err
}

// fakeSynth returns per-scene code keyed by the scene prompt. failuresLeft
// makes the first N calls for a prompt fail before code is handed out.
type fakeSynth struct {
	code         map[string]string
	errFor       map[string]error
	failuresLeft map[string]int
	calls        int
	rcSeen       []*service.RepairContext
}

func (f *fakeSynth) Synthesize(_ context.Context, scenePrompt string, rc *service.RepairContext) (string, error) {
	f.calls++
	f.rcSeen = append(f.rcSeen, rc)
	if f.failuresLeft[scenePrompt] > 0 {
		f.failuresLeft[scenePrompt]--
		return "", service.ErrSynthesisExhausted
	}
	if err, ok := f.errFor[scenePrompt]; ok {
		return "", err
	}
	return f.code[scenePrompt], nil
}

// fakeRenderer writes a real artifact file for accepted code and fails for
// code listed in failing.
type fakeRenderer struct {
	failing map[string]bool
	renders int
}

func (f *fakeRenderer) Render(_ context.Context, code, outputDir, _ string) (string, error) {
	f.renders++
	if f.failing[code] {
		return "", errors.New("renderer exited 1")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, fmt.Sprintf("clip%d.mp4", f.renders))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeAudio struct {
	narrated map[string]string
	err      error
}

func (f *fakeAudio) Augment(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.narrated[code], nil
}

type workerEnv struct {
	worker   *VideoWorker
	store    *store.MemoryStore
	staging  *storage.Staging
	renderer *fakeRenderer
}

func newWorkerEnv(t *testing.T, dec *fakeDecomposer, synth *fakeSynth, rnd *fakeRenderer, audio *fakeAudio) *workerEnv {
	t.Helper()
	base := t.TempDir()
	staging := storage.NewStaging(filepath.Join(base, "work"), filepath.Join(base, "public"), "temp.mp4")
	jobStore := store.NewMemoryStore()

	w := NewVideoWorker(jobStore, staging, nil, configuredFlag(true), configuredFlag(true), dec, synth, rnd, audio)
	w.OverallAttempts = 2
	w.SceneAttempts = 2
	w.OverallRetryDelay = 0
	w.SceneRetryDelay = 0
	return &workerEnv{worker: w, store: jobStore, staging: staging, renderer: rnd}
}

func seedJob(t *testing.T, env *workerEnv, jobID string) {
	t.Helper()
	err := env.store.Save(context.Background(), &model.Job{
		ID:      jobID,
		Status:  model.JobStatusProcessing,
		Message: "Video generation started",
	})
	require.NoError(t, err)
}

func TestRunSingleScene(t *testing.T) {
	dec := &fakeDecomposer{scenes: []model.Scene{{Title: "Intro", Description: "a circle"}}}
	synth := &fakeSynth{code: map[string]string{"Intro a circle": "scene code"}}
	rnd := &fakeRenderer{}
	audio := &fakeAudio{err: service.ErrAugmentationExhausted}
	env := newWorkerEnv(t, dec, synth, rnd, audio)
	seedJob(t, env, "job-1")

	env.worker.Run(context.Background(), "job-1", "a circle video")

	job, err := env.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, job.Status)
	assert.Equal(t, "Video generated successfully", job.Message)
	assert.Equal(t, env.staging.PublishedPath(), job.VideoPath)

	// Narration failed, so the silent render is the published asset.
	data, err := os.ReadFile(job.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, "scene code", string(data))
}

func TestRunNarrationReplacesSilentRender(t *testing.T) {
	dec := &fakeDecomposer{scenes: []model.Scene{{Title: "Intro", Description: "a circle"}}}
	synth := &fakeSynth{code: map[string]string{"Intro a circle": "scene code"}}
	rnd := &fakeRenderer{}
	audio := &fakeAudio{narrated: map[string]string{"scene code": "narrated code"}}
	env := newWorkerEnv(t, dec, synth, rnd, audio)
	seedJob(t, env, "job-2")

	env.worker.Run(context.Background(), "job-2", "a circle video")

	job, err := env.store.Get(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusSuccess, job.Status)

	data, err := os.ReadFile(job.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, "narrated code", string(data))
}

func TestRunRetriesSceneAfterSynthesisFailure(t *testing.T) {
	dec := &fakeDecomposer{scenes: []model.Scene{{Title: "Intro", Description: "a circle"}}}
	synth := &fakeSynth{
		code:         map[string]string{"Intro a circle": "scene code"},
		failuresLeft: map[string]int{"Intro a circle": 1},
	}
	rnd := &fakeRenderer{}
	audio := &fakeAudio{err: service.ErrAugmentationExhausted}
	env := newWorkerEnv(t, dec, synth, rnd, audio)
	seedJob(t, env, "job-7")

	env.worker.Run(context.Background(), "job-7", "a circle video")

	// The failed synthesis consumes one scene attempt; the second attempt
	// within the same scene budget succeeds.
	job, err := env.store.Get(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, job.Status)
	assert.Equal(t, 2, synth.calls)
}

func TestRunKeepsLastGoodSceneWhenLaterSceneFails(t *testing.T) {
	dec := &fakeDecomposer{scenes: []model.Scene{
		{Title: "One", Description: "works"},
		{Title: "Two", Description: "breaks"},
	}}
	synth := &fakeSynth{code: map[string]string{
		"One works":  "good code",
		"Two breaks": "bad code",
	}}
	rnd := &fakeRenderer{failing: map[string]bool{"bad code": true}}
	audio := &fakeAudio{err: service.ErrAugmentationExhausted}
	env := newWorkerEnv(t, dec, synth, rnd, audio)
	seedJob(t, env, "job-3")

	env.worker.Run(context.Background(), "job-3", "two scenes")

	job, err := env.store.Get(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, job.Status)

	data, err := os.ReadFile(job.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, "good code", string(data))

	// The failed render fed a repair context into the scene's retry.
	var sawRepair bool
	for _, rc := range synth.rcSeen {
		if rc != nil && rc.PreviousCode == "bad code" {
			sawRepair = true
		}
	}
	assert.True(t, sawRepair)
}

func TestRunFailsWhenNoSceneRenders(t *testing.T) {
	dec := &fakeDecomposer{scenes: []model.Scene{{Title: "Only", Description: "scene"}}}
	synth := &fakeSynth{errFor: map[string]error{"Only scene": service.ErrSynthesisExhausted}}
	env := newWorkerEnv(t, dec, synth, &fakeRenderer{}, &fakeAudio{})
	seedJob(t, env, "job-4")

	env.worker.Run(context.Background(), "job-4", "impossible")

	job, err := env.store.Get(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, job.Status)
	assert.Equal(t, "Failed to generate video after multiple attempts", job.Message)
	assert.Empty(t, job.VideoPath)
}

func TestRunFailsWhenDecompositionFails(t *testing.T) {
	dec := &fakeDecomposer{err: service.ErrDecompositionFailed}
	env := newWorkerEnv(t, dec, &fakeSynth{}, &fakeRenderer{}, &fakeAudio{})
	seedJob(t, env, "job-5")

	env.worker.Run(context.Background(), "job-5", "anything")

	job, err := env.store.Get(context.Background(), "job-5")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, job.Status)
	assert.NotEmpty(t, job.Message)
}

func TestRunFailsWhenClientsUnconfigured(t *testing.T) {
	dec := &fakeDecomposer{scenes: []model.Scene{{Title: "Intro", Description: "a circle"}}}
	env := newWorkerEnv(t, dec, &fakeSynth{}, &fakeRenderer{}, &fakeAudio{})
	env.worker.gemini = configuredFlag(false)
	seedJob(t, env, "job-6")

	env.worker.Run(context.Background(), "job-6", "a circle video")

	job, err := env.store.Get(context.Background(), "job-6")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, job.Status)
	assert.Equal(t, 0, env.renderer.renders)
}
