package model

// Position places a text overlay. X accepts "center", "left", "right" or a
// pixel value; Y accepts "center", "top", "bottom" or a pixel value.
type Position struct {
	X string `json:"x" validate:"required"`
	Y string `json:"y" validate:"required"`
}

// MediaEffects are the per-type media adjustments. Zoom/Pan/Rotation apply to
// images, Speed/Brightness to video.
type MediaEffects struct {
	Zoom       *float64 `json:"zoom,omitempty" validate:"omitempty,gte=0.1,lte=10"`
	Pan        *string  `json:"pan,omitempty"`
	Rotation   *float64 `json:"rotation,omitempty" validate:"omitempty,gte=-360,lte=360"`
	Speed      *float64 `json:"speed,omitempty" validate:"omitempty,gte=0.1,lte=10"`
	Brightness *float64 `json:"brightness,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// Media is the visual source of a scene. Source is either an uploaded file id
// or a remote URL; it stays unresolved until the resolver has seen it.
type Media struct {
	Type      MediaType     `json:"type" validate:"required,oneof=image video"`
	Source    string        `json:"source" validate:"required"`
	StartTime *float64      `json:"start_time,omitempty" validate:"omitempty,gte=0"`
	EndTime   *float64      `json:"end_time,omitempty" validate:"omitempty,gte=0"`
	Effects   *MediaEffects `json:"effects,omitempty"`
}

// Audio is a per-scene audio track.
type Audio struct {
	Source  string   `json:"source" validate:"required"`
	Volume  *float64 `json:"volume,omitempty" validate:"omitempty,gte=0,lte=1"`
	FadeIn  *float64 `json:"fade_in,omitempty" validate:"omitempty,gte=0"`
	FadeOut *float64 `json:"fade_out,omitempty" validate:"omitempty,gte=0"`
}

// TextOverlay renders text on top of a scene for a time window inside it.
type TextOverlay struct {
	Text            string   `json:"text" validate:"required,min=1,max=500"`
	Position        Position `json:"position" validate:"required"`
	FontSize        *int     `json:"font_size,omitempty" validate:"omitempty,gte=8,lte=200"`
	Color           *string  `json:"color,omitempty" validate:"omitempty,hexcolor"`
	BackgroundColor *string  `json:"background_color,omitempty" validate:"omitempty,hexcolor"`
	StartTime       *float64 `json:"start_time,omitempty" validate:"omitempty,gte=0"`
	Duration        *float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
}

// Scene is one timed unit of visual content plus optional audio and overlays.
type Scene struct {
	ID           string        `json:"id" validate:"required,min=1,max=100"`
	Duration     *float64      `json:"duration,omitempty" validate:"omitempty,gt=0"`
	Media        Media         `json:"media" validate:"required"`
	Audio        *Audio        `json:"audio,omitempty"`
	TextOverlays []TextOverlay `json:"text_overlays,omitempty" validate:"omitempty,dive"`
}

// Transition is a timed blend between two adjacent scenes. Transitions overlap
// the scenes they join rather than appending to the timeline.
type Transition struct {
	FromScene string         `json:"from_scene" validate:"required"`
	ToScene   string         `json:"to_scene" validate:"required"`
	Type      TransitionType `json:"type" validate:"required,oneof=fade slide_left slide_right slide_up slide_down dissolve wipe"`
	Duration  *float64       `json:"duration,omitempty" validate:"omitempty,gte=0,lte=5"`
	Easing    *string        `json:"easing,omitempty"`
}

// BackgroundMusic is the optional global audio bed.
type BackgroundMusic struct {
	Source  string   `json:"source" validate:"required"`
	Volume  *float64 `json:"volume,omitempty" validate:"omitempty,gte=0,lte=1"`
	Loop    *bool    `json:"loop,omitempty"`
	FadeIn  *float64 `json:"fade_in,omitempty" validate:"omitempty,gte=0"`
	FadeOut *float64 `json:"fade_out,omitempty" validate:"omitempty,gte=0"`
}

// GlobalAudio groups composition-wide audio settings.
type GlobalAudio struct {
	BackgroundMusic *BackgroundMusic `json:"background_music,omitempty"`
}

// VideoSettings control the rendered frame.
type VideoSettings struct {
	Width   *int     `json:"width,omitempty" validate:"omitempty,gte=480,lte=7680"`
	Height  *int     `json:"height,omitempty" validate:"omitempty,gte=360,lte=4320"`
	FPS     *int     `json:"fps,omitempty" validate:"omitempty,gte=15,lte=60"`
	Quality *Quality `json:"quality,omitempty" validate:"omitempty,oneof=low medium high"`
}

// OutputSettings control the container and codec of the final artifact.
type OutputSettings struct {
	Format *string `json:"format,omitempty" validate:"omitempty,oneof=mp4 avi mov"`
	Codec  *string `json:"codec,omitempty"`
}

// CompositionSpec is the user-submitted declarative description of a video.
// It is immutable once accepted; the validator returns a defaulted copy.
type CompositionSpec struct {
	Title       string          `json:"title" validate:"required,min=1,max=200"`
	Settings    *VideoSettings  `json:"settings,omitempty"`
	Scenes      []Scene         `json:"scenes" validate:"required,min=1,max=50,dive"`
	Transitions []Transition    `json:"transitions,omitempty" validate:"omitempty,dive"`
	GlobalAudio *GlobalAudio    `json:"global_audio,omitempty"`
	Watermark   *string         `json:"watermark,omitempty"`
	Output      *OutputSettings `json:"output,omitempty"`
}
