package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/promptmotion/api/internal/client"
	"github.com/promptmotion/api/internal/model"
)

// maxScenes bounds a decomposition; the model is asked for 1-5 scenes and
// anything beyond that is truncated rather than rejected.
const maxScenes = 5

// SceneService breaks one prompt into an ordered list of scene briefs via
// the structured-output model.
type SceneService struct {
	gemini client.ContentGenerator

	MaxRetries int
	RetryDelay time.Duration
}

// NewSceneService creates a scene decomposition service.
func NewSceneService(gemini client.ContentGenerator) *SceneService {
	return &SceneService{
		gemini:     gemini,
		MaxRetries: 5,
		RetryDelay: 3 * time.Second,
	}
}

// Decompose asks the model for a scene plan and parses it. Transport and
// schema failures both retry up to the budget; exhaustion returns
// ErrDecompositionFailed with the last cause attached.
func (s *SceneService) Decompose(ctx context.Context, prompt string) ([]model.Scene, error) {
	var lastErr error

	for attempt := 0; attempt < s.MaxRetries; attempt++ {
		log.Printf("Requesting scene decomposition, attempt %d", attempt+1)

		raw, err := s.gemini.GenerateJSON(ctx, scenePlanPrompt+prompt, client.SceneListSchema)
		if err != nil {
			lastErr = err
			log.Printf("Scene decomposition request failed: %v", err)
			s.sleep(ctx, attempt)
			continue
		}

		scenes, err := parseScenePlan(raw)
		if err != nil {
			lastErr = err
			log.Printf("Scene decomposition parse failed: %v", err)
			s.sleep(ctx, attempt)
			continue
		}
		return scenes, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrDecompositionFailed, lastErr)
}

func (s *SceneService) sleep(ctx context.Context, attempt int) {
	if attempt >= s.MaxRetries-1 {
		return
	}
	select {
	case <-time.After(s.RetryDelay):
	case <-ctx.Done():
	}
}

func parseScenePlan(raw string) ([]model.Scene, error) {
	raw = extractJSONObject(raw)

	var plan model.VideoPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("invalid scene plan JSON: %w", err)
	}
	if len(plan.Scenes) == 0 {
		return nil, fmt.Errorf("no scenes in plan")
	}
	if len(plan.Scenes) > maxScenes {
		plan.Scenes = plan.Scenes[:maxScenes]
	}
	for i, sc := range plan.Scenes {
		if strings.TrimSpace(sc.Title) == "" && strings.TrimSpace(sc.Description) == "" {
			return nil, fmt.Errorf("scene %d is empty", i+1)
		}
	}
	return plan.Scenes, nil
}

// extractJSONObject trims any stray text around the outermost JSON object;
// constrained output mostly prevents it, but not always.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
