package compose

import (
	"math"
	"strings"
	"testing"

	"github.com/videoweave/api/internal/model"
)

func testMedia(spec *model.CompositionSpec, videoDurations map[string]float64) map[string]*model.MediaDescriptor {
	media := make(map[string]*model.MediaDescriptor)
	for _, s := range spec.Scenes {
		desc := &model.MediaDescriptor{
			Source: s.Media.Source,
			Path:   "/uploads/" + s.Media.Source + ".bin",
			Type:   s.Media.Type,
			Size:   1024,
		}
		if d, ok := videoDurations[s.Media.Source]; ok {
			desc.Duration = d
		}
		media[s.Media.Source] = desc
		if s.Audio != nil {
			media[s.Audio.Source] = &model.MediaDescriptor{
				Source: s.Audio.Source,
				Path:   "/uploads/" + s.Audio.Source + ".mp3",
				Type:   model.MediaTypeAudio,
				Size:   512,
			}
		}
	}
	if spec.GlobalAudio != nil && spec.GlobalAudio.BackgroundMusic != nil {
		src := spec.GlobalAudio.BackgroundMusic.Source
		media[src] = &model.MediaDescriptor{
			Source: src,
			Path:   "/uploads/" + src + ".mp3",
			Type:   model.MediaTypeAudio,
			Size:   512,
		}
	}
	return media
}

func compileSpec(t *testing.T, spec *model.CompositionSpec, videoDurations map[string]float64) *model.RenderPlan {
	t.Helper()
	v := NewValidator(5)
	validated := mustValidate(t, v, spec)
	plan, err := NewCompiler(v).Compile(validated, testMedia(validated, videoDurations))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return plan
}

func countStages(plan *model.RenderPlan, kind model.StageKind) int {
	n := 0
	for _, st := range plan.Stages {
		if st.Kind == kind {
			n++
		}
	}
	return n
}

func TestCompileStageCounts(t *testing.T) {
	spec := &model.CompositionSpec{
		Title: "test",
		Scenes: []model.Scene{
			imageScene("s1", 5), imageScene("s2", 4), imageScene("s3", 6),
		},
		Transitions: []model.Transition{
			transition("s1", "s2", 1),
			transition("s2", "s3", 1),
		},
	}
	spec.Scenes[0].Audio = &model.Audio{Source: "file-a1"}

	plan := compileSpec(t, spec, nil)

	// N scene stages, N-1 transitions, <=1 audio mix, exactly 1 encode.
	if got := countStages(plan, model.StageSceneRender); got != 3 {
		t.Errorf("scene-render stages = %d, want 3", got)
	}
	if got := countStages(plan, model.StageTransitionBlend); got != 2 {
		t.Errorf("transition-blend stages = %d, want 2", got)
	}
	if got := countStages(plan, model.StageAudioMix); got != 1 {
		t.Errorf("audio-mix stages = %d, want 1", got)
	}
	if got := countStages(plan, model.StageFinalEncode); got != 1 {
		t.Errorf("final-encode stages = %d, want 1", got)
	}
	if plan.Stages[len(plan.Stages)-1].Kind != model.StageFinalEncode {
		t.Error("final-encode must be the last stage")
	}
}

func TestCompileNoAudioMixWithoutAudio(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:  "test",
		Scenes: []model.Scene{imageScene("s1", 5)},
	}

	plan := compileSpec(t, spec, nil)

	if got := countStages(plan, model.StageAudioMix); got != 0 {
		t.Errorf("audio-mix stages = %d, want 0", got)
	}
}

func TestCompileTimelineDuration(t *testing.T) {
	// Scenario from the plan: s1 5s image, s2 10s video, 1s fade -> 14s.
	spec := &model.CompositionSpec{
		Title:       "test",
		Scenes:      []model.Scene{imageScene("s1", 5), videoScene("s2", 10)},
		Transitions: []model.Transition{transition("s1", "s2", 1)},
	}

	plan := compileSpec(t, spec, nil)

	if plan.TotalDuration != 14.0 {
		t.Errorf("timeline duration = %v, want 14.0", plan.TotalDuration)
	}
}

func TestCompileInfersVideoDurationFromMedia(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:       "test",
		Scenes:      []model.Scene{imageScene("s1", 5), videoScene("s2", 0)},
		Transitions: []model.Transition{transition("s1", "s2", 1)},
	}

	plan := compileSpec(t, spec, map[string]float64{"file-s2": 8})

	// 5 + 8 - 1
	if plan.TotalDuration != 12.0 {
		t.Errorf("timeline duration = %v, want 12.0", plan.TotalDuration)
	}
}

func TestCompileClipsOversizedTransition(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:       "test",
		Scenes:      []model.Scene{imageScene("s1", 2), imageScene("s2", 10)},
		Transitions: []model.Transition{transition("s1", "s2", 5)},
	}

	plan := compileSpec(t, spec, nil)

	if len(plan.Warnings) != 1 || !strings.Contains(plan.Warnings[0], "clipped") {
		t.Fatalf("expected one clipping warning, got %v", plan.Warnings)
	}
	// Clipped to min(5, 2, 10) = 2 -> total 2 + 10 - 2 = 10.
	if plan.TotalDuration != 10.0 {
		t.Errorf("timeline duration = %v, want 10.0", plan.TotalDuration)
	}
	var blend *model.TransitionPlan
	for _, st := range plan.Stages {
		if st.Kind == model.StageTransitionBlend {
			blend = st.Transition
		}
	}
	if blend == nil || blend.Duration != 2.0 {
		t.Errorf("clipped transition duration = %+v, want 2.0", blend)
	}
}

func TestCompileDurationArithmeticIsExact(t *testing.T) {
	// 0.1s steps are not representable in binary floating point; the compiler
	// must still produce an exact millisecond total.
	spec := &model.CompositionSpec{
		Title: "test",
		Scenes: []model.Scene{
			imageScene("s1", 0.3), imageScene("s2", 0.3), imageScene("s3", 0.3),
		},
		Transitions: []model.Transition{
			transition("s1", "s2", 0.1),
			transition("s2", "s3", 0.1),
		},
	}

	plan := compileSpec(t, spec, nil)

	if plan.TotalDuration != 0.7 {
		t.Errorf("timeline duration = %v, want exactly 0.7", plan.TotalDuration)
	}
}

func TestCompileAudioMixOffsets(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:       "test",
		Scenes:      []model.Scene{imageScene("s1", 5), imageScene("s2", 10)},
		Transitions: []model.Transition{transition("s1", "s2", 1)},
	}
	spec.Scenes[1].Audio = &model.Audio{Source: "file-a2"}
	spec.GlobalAudio = &model.GlobalAudio{BackgroundMusic: &model.BackgroundMusic{Source: "file-bgm"}}

	plan := compileSpec(t, spec, nil)

	var mix *model.AudioMixPlan
	for _, st := range plan.Stages {
		if st.Kind == model.StageAudioMix {
			mix = st.AudioMix
		}
	}
	if mix == nil {
		t.Fatal("expected an audio-mix stage")
	}
	if len(mix.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(mix.Tracks))
	}
	// s2 starts at 5s minus the 1s transition overlap.
	if math.Abs(mix.Tracks[0].Offset-4.0) > 1e-9 {
		t.Errorf("s2 audio offset = %v, want 4.0", mix.Tracks[0].Offset)
	}
	if mix.Background == nil || !mix.Background.Loop {
		t.Errorf("background = %+v, want looped", mix.Background)
	}
	if mix.Background.Volume != 0.3 {
		t.Errorf("background volume = %v, want default 0.3", mix.Background.Volume)
	}
	if mix.Duration != plan.TotalDuration {
		t.Errorf("mix duration = %v, want %v", mix.Duration, plan.TotalDuration)
	}
}

func TestCompileProgressWeights(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:       "test",
		Scenes:      []model.Scene{imageScene("s1", 5), imageScene("s2", 5)},
		Transitions: []model.Transition{transition("s1", "s2", 1)},
	}

	plan := compileSpec(t, spec, nil)

	sum := 0
	for _, st := range plan.Stages {
		if st.Weight <= 0 {
			t.Errorf("stage %s has non-positive weight %d", st.ID, st.Weight)
		}
		sum += st.Weight
	}
	if plan.TotalWeight != sum {
		t.Errorf("TotalWeight = %d, want %d", plan.TotalWeight, sum)
	}
}

func TestCompileStageOutputsAreDeterministic(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:       "test",
		Scenes:      []model.Scene{imageScene("s1", 5), imageScene("s2", 5)},
		Transitions: []model.Transition{transition("s1", "s2", 1)},
	}

	a := compileSpec(t, spec, nil)
	b := compileSpec(t, spec, nil)

	if len(a.Stages) != len(b.Stages) {
		t.Fatalf("stage counts differ: %d vs %d", len(a.Stages), len(b.Stages))
	}
	for i := range a.Stages {
		if a.Stages[i].ID != b.Stages[i].ID || a.Stages[i].Output != b.Stages[i].Output {
			t.Errorf("stage %d not deterministic: %q/%q vs %q/%q",
				i, a.Stages[i].ID, a.Stages[i].Output, b.Stages[i].ID, b.Stages[i].Output)
		}
	}
}

func TestCompileWatermarkReachesEncodeStage(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:  "test",
		Scenes: []model.Scene{imageScene("s1", 5)},
	}
	wm := "file-wm"
	spec.Watermark = &wm

	v := NewValidator(5)
	validated := mustValidate(t, v, spec)
	media := testMedia(validated, nil)
	media[wm] = &model.MediaDescriptor{Source: wm, Path: "/uploads/file-wm.png", Type: model.MediaTypeImage}

	plan, err := NewCompiler(v).Compile(validated, media)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	encode := plan.Stages[len(plan.Stages)-1].Encode
	if encode == nil || encode.WatermarkPath != "/uploads/file-wm.png" {
		t.Errorf("encode plan = %+v, want watermark path", encode)
	}
}

func TestCompileOverlayOutOfBoundsAfterInference(t *testing.T) {
	spec := &model.CompositionSpec{
		Title:  "test",
		Scenes: []model.Scene{videoScene("s1", 0)},
	}
	start, dur := 7.0, 2.0
	spec.Scenes[0].TextOverlays = []model.TextOverlay{{
		Text:      "late",
		Position:  model.Position{X: "center", Y: "center"},
		StartTime: &start,
		Duration:  &dur,
	}}

	v := NewValidator(5)
	validated := mustValidate(t, v, spec)
	_, err := NewCompiler(v).Compile(validated, testMedia(validated, map[string]float64{"file-s1": 8}))
	wantSpecError(t, err, KindOverlayOutOfBounds)
}

func TestCompileRejectsEmptyTimeline(t *testing.T) {
	// A timeline shorter than the configured time precision collapses to zero
	// length and cannot be encoded.
	spec := &model.CompositionSpec{
		Title:  "test",
		Scenes: []model.Scene{imageScene("s1", 0.0001)},
	}

	v := NewValidator(5)
	validated := mustValidate(t, v, spec)
	_, err := NewCompiler(v).Compile(validated, testMedia(validated, nil))
	wantSpecError(t, err, KindNegativeTimelineDuration)
}

func TestCompileEstimatedTime(t *testing.T) {
	spec := twoSceneSpec()
	plan := compileSpec(t, spec, nil)

	// base 30 + 2*15 + 1*5 = 65, medium quality multiplier 1.0
	if plan.EstimatedTime != 65 {
		t.Errorf("estimated time = %d, want 65", plan.EstimatedTime)
	}
}
