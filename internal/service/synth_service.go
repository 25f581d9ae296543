package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/promptmotion/api/internal/client"
	"github.com/promptmotion/api/internal/extract"
	"github.com/promptmotion/api/internal/repair"
	"github.com/promptmotion/api/internal/validate"
)

const (
	diagNoCodeBlock = "Could not extract a code block from the response. Include your code within ```python and ``` markers."
	diagAfterRepair = "Code still has issues after automatic fixes."
	diagLegacyAxes  = "Invalid Axes parameter: height/width are not accepted, use x_length and y_length instead."
)

// RepairContext carries what the previous attempt produced and why it was
// rejected, so the next generation request can correct it.
type RepairContext struct {
	PreviousCode string
	Diagnostic   string
}

// SynthService asks the code model for scene code and loops until the
// result validates, feeding each failure's diagnostic back into the next
// request.
type SynthService struct {
	codegen   client.CompletionClient
	validator validate.Validator

	MaxAttempts      int
	AttemptDelay     time.Duration
	TransportRetries int
	TransportDelay   time.Duration
}

// NewSynthService creates a code synthesis service with production budgets.
func NewSynthService(codegen client.CompletionClient, validator validate.Validator) *SynthService {
	return &SynthService{
		codegen:          codegen,
		validator:        validator,
		MaxAttempts:      20,
		AttemptDelay:     2 * time.Second,
		TransportRetries: 3,
		TransportDelay:   5 * time.Second,
	}
}

// Synthesize returns code that passed validation, or ErrSynthesisExhausted
// after the attempt budget. rc may carry a prior failure to correct; nil
// starts fresh.
func (s *SynthService) Synthesize(ctx context.Context, scenePrompt string, rc *RepairContext) (string, error) {
	diagnostic, prevCode := "", ""
	if rc != nil {
		diagnostic, prevCode = rc.Diagnostic, rc.PreviousCode
	}

	for attempt := 0; attempt < s.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("Code synthesis attempt %d of %d", attempt+1, s.MaxAttempts)

		prompt := codeSystemPrompt + " " + scenePrompt
		if diagnostic != "" {
			prompt = fmt.Sprintf("%s\n\nPrevious attempt failed with the following error. Please fix it:\n%s", prompt, diagnostic)
			if prevCode != "" {
				prompt = fmt.Sprintf("%s\n\nThe failing code was:\n```python\n%s\n```", prompt, prevCode)
			}
		}

		content, err := s.requestCode(ctx, prompt)
		if err != nil {
			log.Printf("Failed to get response from code model: %v", err)
			s.sleepAttempt(ctx)
			continue
		}

		block, ok := extract.CodeBlock(content, "python")
		if !ok {
			log.Printf("No code block found in response")
			diagnostic, prevCode = diagNoCodeBlock, ""
			s.sleepAttempt(ctx)
			continue
		}
		code := block.Code

		if res := s.validator.Validate(ctx, code); !res.OK {
			diagnostic, prevCode = "Compilation error in previous code: "+res.Diagnostic, code
			s.sleepAttempt(ctx)
			continue
		}

		// Known renderer pitfall: Axes rejects the height/width keywords.
		// Rewrite deterministically, once, and only accept the rewrite if
		// it still validates.
		if fixed, changed := repair.AxesSizingGate(code); changed {
			log.Printf("Rewrote legacy Axes sizing keyword")
			if res := s.validator.Validate(ctx, fixed); !res.OK {
				diagnostic, prevCode = diagAfterRepair, code
				s.sleepAttempt(ctx)
				continue
			}
			code = fixed
		}
		if repair.HasLegacyAxesSizing(code) {
			diagnostic, prevCode = diagLegacyAxes, code
			s.sleepAttempt(ctx)
			continue
		}

		return code, nil
	}

	return "", ErrSynthesisExhausted
}

// requestCode issues one completion request, retrying transport failures a
// few times before the caller counts the whole attempt as failed.
func (s *SynthService) requestCode(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for try := 0; try < s.TransportRetries; try++ {
		content, err := s.codegen.Complete(ctx, prompt)
		if err == nil {
			return content, nil
		}
		lastErr = err
		log.Printf("Code model request failed: %v", err)
		if try < s.TransportRetries-1 {
			select {
			case <-time.After(s.TransportDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

func (s *SynthService) sleepAttempt(ctx context.Context) {
	select {
	case <-time.After(s.AttemptDelay):
	case <-ctx.Done():
	}
}
