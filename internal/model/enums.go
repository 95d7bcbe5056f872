package model

// Media types
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// Transition types
type TransitionType string

const (
	TransitionFade       TransitionType = "fade"
	TransitionSlideLeft  TransitionType = "slide_left"
	TransitionSlideRight TransitionType = "slide_right"
	TransitionSlideUp    TransitionType = "slide_up"
	TransitionSlideDown  TransitionType = "slide_down"
	TransitionDissolve   TransitionType = "dissolve"
	TransitionWipe       TransitionType = "wipe"
)

var ValidTransitionTypes = []TransitionType{
	TransitionFade, TransitionSlideLeft, TransitionSlideRight,
	TransitionSlideUp, TransitionSlideDown, TransitionDissolve, TransitionWipe,
}

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Video quality levels
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Render stage kinds
type StageKind string

const (
	StageSceneRender      StageKind = "scene-render"
	StageTransitionBlend  StageKind = "transition-blend"
	StageOverlayComposite StageKind = "overlay-composite"
	StageAudioMix         StageKind = "audio-mix"
	StageFinalEncode      StageKind = "final-encode"
)
