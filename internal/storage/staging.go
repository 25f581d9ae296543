// Package storage manages the per-job staging directories and the single
// published asset location.
package storage

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Staging namespaces working directories per job id and owns the publish
// location that the static video file server exposes.
type Staging struct {
	workDir     string
	publishDir  string
	publishName string
}

// NewStaging creates a staging layout rooted at workDir, publishing to
// publishDir/publishName.
func NewStaging(workDir, publishDir, publishName string) *Staging {
	if publishName == "" {
		publishName = "temp.mp4"
	}
	return &Staging{
		workDir:     workDir,
		publishDir:  publishDir,
		publishName: publishName,
	}
}

// JobDir returns the working directory for one job, creating it if needed.
func (s *Staging) JobDir(jobID string) (string, error) {
	dir := filepath.Join(s.workDir, "output_"+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job dir: %w", err)
	}
	return dir, nil
}

// CleanJobDir removes a job's working directory and everything under it.
func (s *Staging) CleanJobDir(jobID string) error {
	dir := filepath.Join(s.workDir, "output_"+jobID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove job dir: %w", err)
	}
	return nil
}

// PublishedPath is where the current asset lives once published.
func (s *Staging) PublishedPath() string {
	return filepath.Join(s.publishDir, s.publishName)
}

// ClearPublished removes any previously published asset. Called on
// submission so a poller never sees a stale video as the new job's result.
func (s *Staging) ClearPublished() error {
	if err := os.MkdirAll(s.publishDir, 0o755); err != nil {
		return fmt.Errorf("failed to create publish dir: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(s.publishDir, "*.mp4"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			log.Printf("Failed to delete published file %s: %v", m, err)
		}
	}
	return nil
}

// Publish copies src into the publish location. The copy lands in a temp
// file first and is moved into place with a rename, so a concurrent reader
// never observes a missing or half-written asset.
func (s *Staging) Publish(src string) (string, error) {
	if err := os.MkdirAll(s.publishDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create publish dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open rendered video: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(s.publishDir, ".publish-*.mp4")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to copy video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to flush temp file: %w", err)
	}

	dest := s.PublishedPath()
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move video into place: %w", err)
	}
	return dest, nil
}
