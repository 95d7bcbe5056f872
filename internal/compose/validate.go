package compose

import (
	"encoding/json"
	"fmt"

	"github.com/videoweave/api/internal/model"
)

// Documented defaults applied to omitted/null spec fields.
const (
	DefaultWidth              = 1920
	DefaultHeight             = 1080
	DefaultFPS                = 30
	DefaultQuality            = model.QualityMedium
	DefaultFormat             = "mp4"
	DefaultCodec              = "h264"
	DefaultTransitionDuration = 0.5
	DefaultEasing             = "linear"
	DefaultSceneAudioVolume   = 1.0
	DefaultMusicVolume        = 0.3
	DefaultFontSize           = 24
	DefaultFontColor          = "#FFFFFF"
)

// Validator checks structural correctness of a composition spec and fills
// defaults. It is pure: spec in, defaulted-spec-or-error out. Validating an
// already validated spec returns an equal spec.
type Validator struct {
	defaultSceneDuration float64
}

// NewValidator creates a validator. defaultSceneDuration is the effective
// duration of image scenes that carry no explicit duration.
func NewValidator(defaultSceneDuration float64) *Validator {
	if defaultSceneDuration <= 0 {
		defaultSceneDuration = 5.0
	}
	return &Validator{defaultSceneDuration: defaultSceneDuration}
}

// DefaultSceneDuration exposes the configured fallback duration.
func (v *Validator) DefaultSceneDuration() float64 { return v.defaultSceneDuration }

// Validate runs the structural checks in order and returns a fully defaulted
// copy of the spec. The input spec is never mutated.
func (v *Validator) Validate(spec *model.CompositionSpec) (*model.CompositionSpec, error) {
	out, err := cloneSpec(spec)
	if err != nil {
		return nil, err
	}

	if err := checkSceneIDs(out); err != nil {
		return nil, err
	}
	if err := checkTransitionEndpoints(out); err != nil {
		return nil, err
	}
	if err := checkTransitionTopology(out); err != nil {
		return nil, err
	}
	if err := v.checkOverlayBounds(out); err != nil {
		return nil, err
	}

	v.applyDefaults(out)
	return out, nil
}

// KnownSceneDuration returns the scene's duration when it can be determined
// without media resolution: the explicit duration, or the configured default
// for images. Video scenes without an explicit duration return ok=false and
// are bounded later, once the resolver has probed the source.
func (v *Validator) KnownSceneDuration(s *model.Scene) (float64, bool) {
	if s.Duration != nil {
		return *s.Duration, true
	}
	if s.Media.Type == model.MediaTypeImage {
		return v.defaultSceneDuration, true
	}
	return 0, false
}

func checkSceneIDs(spec *model.CompositionSpec) error {
	seen := make(map[string]bool, len(spec.Scenes))
	for _, s := range spec.Scenes {
		if seen[s.ID] {
			return specErrorf(KindDuplicateSceneID, "scene id %q declared more than once", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func checkTransitionEndpoints(spec *model.CompositionSpec) error {
	ids := make(map[string]bool, len(spec.Scenes))
	for _, s := range spec.Scenes {
		ids[s.ID] = true
	}
	for _, t := range spec.Transitions {
		if !ids[t.FromScene] {
			return specErrorf(KindUnknownSceneReference, "from_scene %q does not exist", t.FromScene)
		}
		if !ids[t.ToScene] {
			return specErrorf(KindUnknownSceneReference, "to_scene %q does not exist", t.ToScene)
		}
		if t.FromScene == t.ToScene {
			return specErrorf(KindInvalidTransitionTopology, "transition from %q to itself", t.FromScene)
		}
	}
	return nil
}

// checkTransitionTopology enforces the single-linear-chain invariant: at most
// one incoming and one outgoing transition per scene, and every transition
// connects scenes adjacent in declaration order. That rules out branches,
// merges and cycles without a separate graph walk.
func checkTransitionTopology(spec *model.CompositionSpec) error {
	index := make(map[string]int, len(spec.Scenes))
	for i, s := range spec.Scenes {
		index[s.ID] = i
	}

	incoming := make(map[string]int)
	outgoing := make(map[string]int)
	for _, t := range spec.Transitions {
		incoming[t.ToScene]++
		outgoing[t.FromScene]++
	}
	for id, n := range incoming {
		if n > 1 {
			return specErrorf(KindInvalidTransitionTopology, "scene %q has %d incoming transitions", id, n)
		}
	}
	for id, n := range outgoing {
		if n > 1 {
			return specErrorf(KindInvalidTransitionTopology, "scene %q has %d outgoing transitions", id, n)
		}
	}

	for _, t := range spec.Transitions {
		if index[t.ToScene] != index[t.FromScene]+1 {
			return specErrorf(KindInvalidTransitionTopology,
				"transition %q -> %q does not follow scene declaration order", t.FromScene, t.ToScene)
		}
	}
	return nil
}

func (v *Validator) checkOverlayBounds(spec *model.CompositionSpec) error {
	for i := range spec.Scenes {
		s := &spec.Scenes[i]
		dur, known := v.KnownSceneDuration(s)
		if !known {
			// Video scene without explicit duration: bounded again by the
			// compiler once the media duration is probed.
			continue
		}
		for _, o := range s.TextOverlays {
			start := 0.0
			if o.StartTime != nil {
				start = *o.StartTime
			}
			if o.Duration != nil && start+*o.Duration > dur {
				return specErrorf(KindOverlayOutOfBounds,
					"overlay %q on scene %q runs %.2fs past the scene end (%.2f+%.2f > %.2f)",
					o.Text, s.ID, start+*o.Duration-dur, start, *o.Duration, dur)
			}
			if o.Duration == nil && start >= dur {
				return specErrorf(KindOverlayOutOfBounds,
					"overlay %q on scene %q starts at %.2fs, at or beyond the scene end (%.2fs)",
					o.Text, s.ID, start, dur)
			}
		}
	}
	return nil
}

// applyDefaults resolves every null optional field to its documented value.
// Non-failing and total, so compilation never sees a nil it must guess about.
func (v *Validator) applyDefaults(spec *model.CompositionSpec) {
	if spec.Settings == nil {
		spec.Settings = &model.VideoSettings{}
	}
	if spec.Settings.Width == nil {
		spec.Settings.Width = intPtr(DefaultWidth)
	}
	if spec.Settings.Height == nil {
		spec.Settings.Height = intPtr(DefaultHeight)
	}
	if spec.Settings.FPS == nil {
		spec.Settings.FPS = intPtr(DefaultFPS)
	}
	if spec.Settings.Quality == nil {
		q := DefaultQuality
		spec.Settings.Quality = &q
	}

	if spec.Output == nil {
		spec.Output = &model.OutputSettings{}
	}
	if spec.Output.Format == nil {
		spec.Output.Format = strPtr(DefaultFormat)
	}
	if spec.Output.Codec == nil {
		spec.Output.Codec = strPtr(DefaultCodec)
	}

	for i := range spec.Scenes {
		s := &spec.Scenes[i]
		if s.Audio != nil {
			if s.Audio.Volume == nil {
				s.Audio.Volume = floatPtr(DefaultSceneAudioVolume)
			}
			if s.Audio.FadeIn == nil {
				s.Audio.FadeIn = floatPtr(0)
			}
			if s.Audio.FadeOut == nil {
				s.Audio.FadeOut = floatPtr(0)
			}
		}
		for j := range s.TextOverlays {
			o := &s.TextOverlays[j]
			if o.FontSize == nil {
				o.FontSize = intPtr(DefaultFontSize)
			}
			if o.Color == nil {
				o.Color = strPtr(DefaultFontColor)
			}
			if o.StartTime == nil {
				o.StartTime = floatPtr(0)
			}
			if o.Duration == nil {
				if dur, known := v.KnownSceneDuration(s); known {
					o.Duration = floatPtr(dur - *o.StartTime)
				}
				// otherwise resolved at compile time, after media probing
			}
		}
	}

	for i := range spec.Transitions {
		t := &spec.Transitions[i]
		if t.Duration == nil {
			t.Duration = floatPtr(DefaultTransitionDuration)
		}
		if t.Easing == nil {
			t.Easing = strPtr(DefaultEasing)
		}
	}

	if spec.GlobalAudio != nil && spec.GlobalAudio.BackgroundMusic != nil {
		m := spec.GlobalAudio.BackgroundMusic
		if m.Volume == nil {
			m.Volume = floatPtr(DefaultMusicVolume)
		}
		if m.Loop == nil {
			m.Loop = boolPtr(true)
		}
		if m.FadeIn == nil {
			m.FadeIn = floatPtr(0)
		}
		if m.FadeOut == nil {
			m.FadeOut = floatPtr(0)
		}
	}
}

func cloneSpec(spec *model.CompositionSpec) (*model.CompositionSpec, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("clone spec: %w", err)
	}
	var out model.CompositionSpec
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone spec: %w", err)
	}
	return &out, nil
}

func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
