package model

// ScenePlan carries everything a scene-render stage needs: the resolved media
// file, the effective scene duration and the overlay set to composite.
type ScenePlan struct {
	SceneID   string        `json:"sceneId"`
	MediaPath string        `json:"mediaPath"`
	MediaType MediaType     `json:"mediaType"`
	Duration  float64       `json:"duration"`
	TrimStart *float64      `json:"trimStart,omitempty"`
	TrimEnd   *float64      `json:"trimEnd,omitempty"`
	Effects   *MediaEffects `json:"effects,omitempty"`
	Overlays  []TextOverlay `json:"overlays,omitempty"`
}

// TransitionPlan blends the tail of one scene artifact into the head of the
// next. Duration is already clipped to the shorter neighbouring scene.
type TransitionPlan struct {
	FromScene string         `json:"fromScene"`
	ToScene   string         `json:"toScene"`
	Type      TransitionType `json:"type"`
	Duration  float64        `json:"duration"`
	Easing    string         `json:"easing"`
}

// AudioTrack is one input of the audio-mix stage, offset onto the timeline.
type AudioTrack struct {
	Path     string  `json:"path"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
	Volume   float64 `json:"volume"`
	FadeIn   float64 `json:"fadeIn"`
	FadeOut  float64 `json:"fadeOut"`
	Loop     bool    `json:"loop"`
}

// AudioMixPlan combines per-scene tracks with the optional background bed.
type AudioMixPlan struct {
	Tracks     []AudioTrack `json:"tracks,omitempty"`
	Background *AudioTrack  `json:"background,omitempty"`
	Duration   float64      `json:"duration"`
}

// EncodePlan is the input of the single final-encode stage.
type EncodePlan struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	FPS           int     `json:"fps"`
	Quality       Quality `json:"quality"`
	Format        string  `json:"format"`
	Codec         string  `json:"codec"`
	WatermarkPath string  `json:"watermarkPath,omitempty"`
	Duration      float64 `json:"duration"`
}

// RenderStage is one ordered, idempotent execution unit of a plan. Inputs name
// resolved media files or prior stage outputs; Output is a deterministic
// artifact slot, so re-running a stage with the same inputs lands on the same
// path. Attempts is persisted so retry state survives a process restart.
type RenderStage struct {
	ID       string    `json:"id"`
	Kind     StageKind `json:"kind"`
	Inputs   []string  `json:"inputs,omitempty"`
	Output   string    `json:"output"`
	Weight   int       `json:"weight"`
	Attempts int       `json:"attempts"`

	Scene      *ScenePlan      `json:"scene,omitempty"`
	Transition *TransitionPlan `json:"transition,omitempty"`
	AudioMix   *AudioMixPlan   `json:"audioMix,omitempty"`
	Encode     *EncodePlan     `json:"encode,omitempty"`
}

// RenderPlan is the ordered stage sequence compiled from a validated spec.
// Stages execute strictly in slice order; the compiler never executes them.
type RenderPlan struct {
	Stages        []RenderStage `json:"stages"`
	TotalDuration float64       `json:"totalDuration"`
	TotalWeight   int           `json:"totalWeight"`
	Warnings      []string      `json:"warnings,omitempty"`
	EstimatedTime int           `json:"estimatedTime"`
}

// StageByID returns the stage with the given id, or nil.
func (p *RenderPlan) StageByID(id string) *RenderStage {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i]
		}
	}
	return nil
}
