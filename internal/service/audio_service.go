package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/promptmotion/api/internal/client"
	"github.com/promptmotion/api/internal/extract"
	"github.com/promptmotion/api/internal/validate"
)

// errAugmented signals a successful attempt out of the parallel race; it
// cancels the remaining attempts via the group context.
var errAugmented = errors.New("augmentation produced a result")

// AudioService wraps rendered scene code with narration directives. Up to
// MaxAttempts sequential tries bound API cost in the common case; if they
// all fail, the same budget is spent again as a parallel race to minimize
// latency in the degraded case.
type AudioService struct {
	gemini    client.ContentGenerator
	validator validate.Validator

	MaxAttempts  int
	AttemptDelay time.Duration
}

// NewAudioService creates an audio augmentation service.
func NewAudioService(gemini client.ContentGenerator, validator validate.Validator) *AudioService {
	return &AudioService{
		gemini:       gemini,
		validator:    validator,
		MaxAttempts:  5,
		AttemptDelay: time.Second,
	}
}

// Augment returns a narrated rewrite of code that independently validates.
// It never falls back silently: exhaustion returns
// ErrAugmentationExhausted and the caller keeps the non-audio version.
func (s *AudioService) Augment(ctx context.Context, code string) (string, error) {
	prompt := audioRewritePrompt + code

	for i := 0; i < s.MaxAttempts; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		result, err := s.attempt(ctx, prompt, i+1)
		if err == nil {
			return result, nil
		}
		log.Printf("Audio augmentation attempt %d failed: %v", i+1, err)
		if i < s.MaxAttempts-1 {
			select {
			case <-time.After(s.AttemptDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	log.Printf("All sequential audio attempts failed, racing %d parallel attempts", s.MaxAttempts)
	return s.race(ctx, prompt)
}

// race runs MaxAttempts concurrently and accepts the first valid result,
// cancelling the rest.
func (s *AudioService) race(ctx context.Context, prompt string) (string, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make(chan string, s.MaxAttempts)

	for i := 0; i < s.MaxAttempts; i++ {
		attempt := i + 1
		g.Go(func() error {
			result, err := s.attempt(gctx, prompt, attempt)
			if err != nil {
				if gctx.Err() != nil {
					return nil // lost the race, not a failure
				}
				log.Printf("Parallel audio attempt %d failed: %v", attempt, err)
				return nil
			}
			results <- result
			return errAugmented
		})
	}

	err := g.Wait()
	close(results)
	if errors.Is(err, errAugmented) {
		return <-results, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", ErrAugmentationExhausted
}

func (s *AudioService) attempt(ctx context.Context, prompt string, n int) (string, error) {
	log.Printf("Attempting audio generation, attempt %d", n)

	content, err := s.gemini.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}

	block, ok := extract.CodeBlock(content, "python")
	if !ok {
		return "", fmt.Errorf("no code block in narration response")
	}

	if res := s.validator.Validate(ctx, block.Code); !res.OK {
		return "", fmt.Errorf("narrated code failed validation: %s", res.Diagnostic)
	}
	return block.Code, nil
}
