// Package validate checks candidate renderer source before it is handed to
// the render subprocess.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Result is the outcome of validating one source blob. Diagnostic carries
// the compiler output when OK is false.
type Result struct {
	OK         bool
	Diagnostic string
}

// Validator compiles or parses a candidate source blob and reports
// pass/fail with diagnostic text.
type Validator interface {
	Validate(ctx context.Context, code string) Result
}

// PythonValidator shells out to the interpreter's byte-compiler. It never
// executes the candidate code.
type PythonValidator struct {
	bin string
}

// NewPythonValidator creates a validator using the given interpreter binary.
func NewPythonValidator(bin string) *PythonValidator {
	if bin == "" {
		bin = "python3"
	}
	return &PythonValidator{bin: bin}
}

// Validate writes code to a temp file and runs `python -m py_compile` on it.
// Validating the same blob twice yields the same result.
func (v *PythonValidator) Validate(ctx context.Context, code string) Result {
	tmpDir, err := os.MkdirTemp("", "validate-*")
	if err != nil {
		return Result{Diagnostic: fmt.Sprintf("failed to create temp dir: %v", err)}
	}
	defer os.RemoveAll(tmpDir)

	tmpFile := filepath.Join(tmpDir, "candidate.py")
	if err := os.WriteFile(tmpFile, []byte(code), 0o644); err != nil {
		return Result{Diagnostic: fmt.Sprintf("failed to write temp file: %v", err)}
	}

	cmd := exec.CommandContext(ctx, v.bin, "-m", "py_compile", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return Result{Diagnostic: diag}
	}
	return Result{OK: true}
}
