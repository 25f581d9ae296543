package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSceneService(gen *fakeGenerator) *SceneService {
	s := NewSceneService(gen)
	s.RetryDelay = 0
	return s
}

func TestDecomposeParsesPlan(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"scenes":[{"title":"Intro","description":"A circle appears"},{"title":"Growth","description":"The circle scales up"}],"video_title":"Circles"}`,
	}}
	s := newTestSceneService(gen)

	scenes, err := s.Decompose(context.Background(), "a video about circles")
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "Intro", scenes[0].Title)
	assert.Equal(t, "Intro A circle appears", scenes[0].Prompt())
}

func TestDecomposeStripsSurroundingText(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"Here is the plan:\n" + `{"scenes":[{"title":"Only","description":"scene"}]}` + "\nDone.",
	}}
	s := newTestSceneService(gen)

	scenes, err := s.Decompose(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, scenes, 1)
}

func TestDecomposeTruncatesToSceneCap(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"scenes":[
			{"title":"1","description":"a"},{"title":"2","description":"b"},
			{"title":"3","description":"c"},{"title":"4","description":"d"},
			{"title":"5","description":"e"},{"title":"6","description":"f"},
			{"title":"7","description":"g"}]}`,
	}}
	s := newTestSceneService(gen)

	scenes, err := s.Decompose(context.Background(), "long prompt")
	require.NoError(t, err)
	assert.Len(t, scenes, maxScenes)
}

func TestDecomposeRetriesBadPlans(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"not json at all",
		`{"scenes":[]}`,
		`{"scenes":[{"title":"Good","description":"plan"}]}`,
	}}
	s := newTestSceneService(gen)

	scenes, err := s.Decompose(context.Background(), "prompt")
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, 3, gen.callCount())
}

func TestDecomposeRejectsEmptyScene(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"scenes":[{"title":"","description":"  "}]}`,
	}}
	s := newTestSceneService(gen)
	s.MaxRetries = 1

	_, err := s.Decompose(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrDecompositionFailed)
}

func TestDecomposeExhaustsRetries(t *testing.T) {
	gen := &fakeGenerator{errFor: map[int]error{
		0: errors.New("upstream 503"),
		1: errors.New("upstream 503"),
		2: errors.New("upstream 503"),
	}}
	s := newTestSceneService(gen)
	s.MaxRetries = 3

	_, err := s.Decompose(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrDecompositionFailed)
	assert.Equal(t, 3, gen.callCount())
}
