package service

import (
	"context"
	"errors"
	"sync"

	"github.com/promptmotion/api/internal/validate"
)

// fakeGenerator scripts ContentGenerator responses; each call consumes the
// next entry, and errFor marks which calls fail.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errFor    map[int]error
	calls     int
	prompts   []string
}

func (f *fakeGenerator) next(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if err, ok := f.errFor[i]; ok {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	return f.next(prompt)
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, prompt string, _ any) (string, error) {
	return f.next(prompt)
}

func (f *fakeGenerator) IsConfigured() bool { return true }

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeCompleter scripts CompletionClient responses the same way.
type fakeCompleter struct {
	mu        sync.Mutex
	responses []string
	errFor    map[int]error
	calls     int
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if err, ok := f.errFor[i]; ok {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeCompleter) IsConfigured() bool { return true }

// fakeValidator rejects codes listed in badCode with the mapped diagnostic
// and accepts everything else.
type fakeValidator struct {
	mu      sync.Mutex
	badCode map[string]string
	checked []string
}

func (f *fakeValidator) Validate(_ context.Context, code string) validate.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, code)
	if diag, ok := f.badCode[code]; ok {
		return validate.Result{OK: false, Diagnostic: diag}
	}
	return validate.Result{OK: true}
}
