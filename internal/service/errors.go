package service

import "errors"

// Sentinel errors marking which retry budget was exhausted. Each one is
// caught at its owning loop's boundary: decomposition failures retry the
// whole pipeline attempt, synthesis failures skip the scene, augmentation
// failures keep the silent render.
var (
	ErrDecompositionFailed   = errors.New("scene decomposition failed")
	ErrSynthesisExhausted    = errors.New("code synthesis attempts exhausted")
	ErrAugmentationExhausted = errors.New("audio augmentation attempts exhausted")
)
