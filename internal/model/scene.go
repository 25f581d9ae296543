package model

// Scene is one narrative segment of a video, produced by scene decomposition.
// The list order is playback order and is immutable once decomposed.
type Scene struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Prompt builds the per-scene prompt fed to code synthesis.
func (s Scene) Prompt() string {
	return s.Title + " " + s.Description
}

// VideoPlan is the structured decomposition of one prompt into scenes.
type VideoPlan struct {
	Scenes     []Scene `json:"scenes"`
	VideoTitle string  `json:"video_title"`
}
