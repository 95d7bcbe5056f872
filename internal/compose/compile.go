package compose

import (
	"fmt"
	"math"

	"github.com/videoweave/api/internal/model"
)

// Stage weight constants used for progress accounting. Weights are relative;
// progress is completed weight over total weight.
const (
	weightScene      = 15
	weightPerOverlay = 3
	weightTransition = 5
	weightAudioMix   = 10
	weightEncode     = 30
)

// timeScale is the configured time precision: all timeline arithmetic runs on
// integer milliseconds so repeated sums cannot drift.
const timeScale = 1000

// Compiler converts a validated spec plus resolved media into a render plan.
// It only emits the plan; it never executes stages.
type Compiler struct {
	validator *Validator
}

// NewCompiler creates a compiler sharing the validator's duration defaults.
func NewCompiler(v *Validator) *Compiler {
	return &Compiler{validator: v}
}

// Compile builds the ordered stage sequence for a spec. media maps every
// source string appearing in the spec to its resolved descriptor.
func (c *Compiler) Compile(spec *model.CompositionSpec, media map[string]*model.MediaDescriptor) (*model.RenderPlan, error) {
	plan := &model.RenderPlan{}

	durations := c.sceneDurations(spec, media)
	if err := c.boundDeferredOverlays(spec, durations); err != nil {
		return nil, err
	}

	// One scene-render stage per scene, in declaration order.
	sceneOutputs := make(map[string]string, len(spec.Scenes))
	for i := range spec.Scenes {
		s := &spec.Scenes[i]
		desc := media[s.Media.Source]
		if desc == nil {
			return nil, fmt.Errorf("compile: no resolved media for source %q", s.Media.Source)
		}
		output := fmt.Sprintf("scene_%s.mp4", s.ID)
		sceneOutputs[s.ID] = output
		plan.Stages = append(plan.Stages, model.RenderStage{
			ID:     fmt.Sprintf("stage-%02d-scene-%s", len(plan.Stages), s.ID),
			Kind:   model.StageSceneRender,
			Inputs: []string{desc.Path},
			Output: output,
			Weight: weightScene + weightPerOverlay*len(s.TextOverlays),
			Scene: &model.ScenePlan{
				SceneID:   s.ID,
				MediaPath: desc.Path,
				MediaType: s.Media.Type,
				Duration:  durations[s.ID],
				TrimStart: s.Media.StartTime,
				TrimEnd:   s.Media.EndTime,
				Effects:   s.Media.Effects,
				Overlays:  s.TextOverlays,
			},
		})
	}

	// One transition-blend stage per transition. Durations longer than either
	// neighbouring scene are clipped, reported as warnings, never fatal.
	transitionMS := int64(0)
	clipped := make(map[int]float64, len(spec.Transitions))
	for i := range spec.Transitions {
		t := &spec.Transitions[i]
		dur := *t.Duration
		limit := math.Min(durations[t.FromScene], durations[t.ToScene])
		if dur > limit {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf(
				"transition %s -> %s clipped from %.2fs to %.2fs", t.FromScene, t.ToScene, dur, limit))
			dur = limit
		}
		clipped[i] = dur
		transitionMS += toMillis(dur)
		plan.Stages = append(plan.Stages, model.RenderStage{
			ID:     fmt.Sprintf("stage-%02d-transition-%s-%s", len(plan.Stages), t.FromScene, t.ToScene),
			Kind:   model.StageTransitionBlend,
			Inputs: []string{sceneOutputs[t.FromScene], sceneOutputs[t.ToScene]},
			Output: fmt.Sprintf("transition_%s_%s.mp4", t.FromScene, t.ToScene),
			Weight: weightTransition,
			Transition: &model.TransitionPlan{
				FromScene: t.FromScene,
				ToScene:   t.ToScene,
				Type:      t.Type,
				Duration:  dur,
				Easing:    *t.Easing,
			},
		})
	}

	// Total timeline duration: scenes overlap at transitions, they do not
	// append. Exact at millisecond precision.
	sceneMS := int64(0)
	for _, s := range spec.Scenes {
		sceneMS += toMillis(durations[s.ID])
	}
	totalMS := sceneMS - transitionMS
	if totalMS <= 0 {
		return nil, specErrorf(KindNegativeTimelineDuration,
			"transitions overlap %.3fs of %.3fs of scene material", fromMillis(transitionMS), fromMillis(sceneMS))
	}
	plan.TotalDuration = fromMillis(totalMS)

	// At most one audio-mix stage: per-scene tracks offset by cumulative scene
	// starts minus transition overlap, plus the optional background bed.
	if mix := c.audioMix(spec, media, durations, clipped, plan.TotalDuration); mix != nil {
		inputs := make([]string, 0, len(mix.Tracks)+1)
		for _, tr := range mix.Tracks {
			inputs = append(inputs, tr.Path)
		}
		if mix.Background != nil {
			inputs = append(inputs, mix.Background.Path)
		}
		plan.Stages = append(plan.Stages, model.RenderStage{
			ID:       fmt.Sprintf("stage-%02d-audio-mix", len(plan.Stages)),
			Kind:     model.StageAudioMix,
			Inputs:   inputs,
			Output:   "audio_mix.m4a",
			Weight:   weightAudioMix,
			AudioMix: mix,
		})
	}

	// Exactly one final-encode stage consuming every prior output.
	encodeInputs := make([]string, 0, len(plan.Stages))
	for _, st := range plan.Stages {
		encodeInputs = append(encodeInputs, st.Output)
	}
	encode := &model.EncodePlan{
		Width:    *spec.Settings.Width,
		Height:   *spec.Settings.Height,
		FPS:      *spec.Settings.FPS,
		Quality:  *spec.Settings.Quality,
		Format:   *spec.Output.Format,
		Codec:    *spec.Output.Codec,
		Duration: plan.TotalDuration,
	}
	if spec.Watermark != nil {
		if desc := media[*spec.Watermark]; desc != nil {
			encode.WatermarkPath = desc.Path
		}
	}
	plan.Stages = append(plan.Stages, model.RenderStage{
		ID:     fmt.Sprintf("stage-%02d-final-encode", len(plan.Stages)),
		Kind:   model.StageFinalEncode,
		Inputs: encodeInputs,
		Output: fmt.Sprintf("final.%s", encode.Format),
		Weight: weightEncode,
		Encode: encode,
	})

	for _, st := range plan.Stages {
		plan.TotalWeight += st.Weight
	}
	plan.EstimatedTime = estimateProcessingTime(spec)
	return plan, nil
}

// sceneDurations resolves the effective duration of every scene: explicit
// duration, else probed media duration, else the configured default.
func (c *Compiler) sceneDurations(spec *model.CompositionSpec, media map[string]*model.MediaDescriptor) map[string]float64 {
	out := make(map[string]float64, len(spec.Scenes))
	for i := range spec.Scenes {
		s := &spec.Scenes[i]
		if dur, known := c.validator.KnownSceneDuration(s); known {
			out[s.ID] = dur
			continue
		}
		dur := 0.0
		if desc := media[s.Media.Source]; desc != nil {
			dur = desc.Duration
			if s.Media.StartTime != nil {
				end := dur
				if s.Media.EndTime != nil {
					end = *s.Media.EndTime
				}
				dur = end - *s.Media.StartTime
			} else if s.Media.EndTime != nil {
				dur = *s.Media.EndTime
			}
		}
		if dur <= 0 {
			dur = c.validator.DefaultSceneDuration()
		}
		out[s.ID] = dur
	}
	return out
}

// boundDeferredOverlays re-checks overlay windows on scenes whose duration was
// only inferable after media resolution, and fills the remaining nil overlay
// durations so the plan carries no unresolved fields.
func (c *Compiler) boundDeferredOverlays(spec *model.CompositionSpec, durations map[string]float64) error {
	for i := range spec.Scenes {
		s := &spec.Scenes[i]
		dur := durations[s.ID]
		for j := range s.TextOverlays {
			o := &s.TextOverlays[j]
			start := 0.0
			if o.StartTime != nil {
				start = *o.StartTime
			}
			if o.Duration == nil {
				if start >= dur {
					return specErrorf(KindOverlayOutOfBounds,
						"overlay %q on scene %q starts at %.2fs, at or beyond the scene end (%.2fs)", o.Text, s.ID, start, dur)
				}
				o.Duration = floatPtr(dur - start)
				continue
			}
			if start+*o.Duration > dur {
				return specErrorf(KindOverlayOutOfBounds,
					"overlay %q on scene %q runs past the scene end (%.2f+%.2f > %.2f)", o.Text, s.ID, start, *o.Duration, dur)
			}
		}
	}
	return nil
}

func (c *Compiler) audioMix(spec *model.CompositionSpec, media map[string]*model.MediaDescriptor, durations map[string]float64, clipped map[int]float64, total float64) *model.AudioMixPlan {
	mix := &model.AudioMixPlan{Duration: total}

	// Transition overlap accumulated before each scene index. The transitions
	// are a validated linear chain, so transition i precedes scene i+1.
	overlapBefore := make([]float64, len(spec.Scenes)+1)
	index := make(map[string]int, len(spec.Scenes))
	for i, s := range spec.Scenes {
		index[s.ID] = i
	}
	for i := range spec.Transitions {
		to := index[spec.Transitions[i].ToScene]
		for j := to; j <= len(spec.Scenes); j++ {
			overlapBefore[j] += clipped[i]
		}
	}

	offset := 0.0
	for i := range spec.Scenes {
		s := &spec.Scenes[i]
		start := offset - overlapBefore[i]
		if s.Audio != nil {
			if desc := media[s.Audio.Source]; desc != nil {
				mix.Tracks = append(mix.Tracks, model.AudioTrack{
					Path:     desc.Path,
					Offset:   start,
					Duration: durations[s.ID],
					Volume:   *s.Audio.Volume,
					FadeIn:   *s.Audio.FadeIn,
					FadeOut:  *s.Audio.FadeOut,
				})
			}
		}
		offset += durations[s.ID]
	}

	if spec.GlobalAudio != nil && spec.GlobalAudio.BackgroundMusic != nil {
		m := spec.GlobalAudio.BackgroundMusic
		if desc := media[m.Source]; desc != nil {
			mix.Background = &model.AudioTrack{
				Path:     desc.Path,
				Offset:   0,
				Duration: total,
				Volume:   *m.Volume,
				FadeIn:   *m.FadeIn,
				FadeOut:  *m.FadeOut,
				Loop:     *m.Loop,
			}
		}
	}

	if len(mix.Tracks) == 0 && mix.Background == nil {
		return nil
	}
	return mix
}

// estimateProcessingTime mirrors the submission-time estimate: a base cost
// plus per-scene, per-transition and per-overlay increments, scaled by the
// output quality.
func estimateProcessingTime(spec *model.CompositionSpec) int {
	total := 30.0
	total += float64(len(spec.Scenes)) * 15
	total += float64(len(spec.Transitions)) * 5
	for _, s := range spec.Scenes {
		total += float64(len(s.TextOverlays)) * 3
	}
	if spec.GlobalAudio != nil && spec.GlobalAudio.BackgroundMusic != nil {
		total += 10
	}
	switch *spec.Settings.Quality {
	case model.QualityLow:
		total *= 0.7
	case model.QualityHigh:
		total *= 1.5
	}
	return int(total)
}

func toMillis(seconds float64) int64 {
	return int64(math.Round(seconds * timeScale))
}

func fromMillis(ms int64) float64 {
	return float64(ms) / timeScale
}
