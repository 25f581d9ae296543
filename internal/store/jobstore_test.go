package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptmotion/api/internal/model"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := &model.Job{
		ID:        "abc",
		Status:    model.JobStatusProcessing,
		Message:   "Video generation started",
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Save(ctx, job))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, "Video generation started", got.Message)
}

func TestMemoryStore_UnknownID(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &model.Job{ID: "j", Status: model.JobStatusProcessing}))

	got, err := s.Get(ctx, "j")
	require.NoError(t, err)
	got.Status = model.JobStatusError

	again, err := s.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, again.Status)
}

func TestMemoryStore_TerminalStatusSticks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := &model.Job{ID: "j", Status: model.JobStatusProcessing}
	require.NoError(t, s.Save(ctx, job))

	job.Status = model.JobStatusSuccess
	job.VideoPath = "video_server/temp.mp4"
	require.NoError(t, s.Save(ctx, job))

	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, "j")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusSuccess, got.Status)
		assert.Equal(t, "video_server/temp.mp4", got.VideoPath)
	}
}

func TestMemoryStore_SweepEvictsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &model.Job{ID: "old"}))
	s.mu.Lock()
	entry := s.jobs["old"]
	entry.savedAt = time.Now().Add(-Retention - time.Minute)
	s.jobs["old"] = entry
	s.mu.Unlock()
	require.NoError(t, s.Save(ctx, &model.Job{ID: "fresh"}))

	assert.Equal(t, 1, s.Sweep())

	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "fresh")
	assert.NoError(t, err)
}
