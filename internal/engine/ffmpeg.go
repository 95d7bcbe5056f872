package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/videoweave/api/internal/model"
)

// Quality to video bitrate mapping.
var qualityBitrate = map[model.Quality]string{
	model.QualityLow:    "1000k",
	model.QualityMedium: "2500k",
	model.QualityHigh:   "5000k",
}

// FFmpeg renders stages by shelling out to the ffmpeg binary.
type FFmpeg struct {
	binary string
}

// NewFFmpeg creates an engine. binary defaults to "ffmpeg" on PATH.
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

// Execute renders one stage into workDir and returns the artifact path.
func (e *FFmpeg) Execute(ctx context.Context, workDir string, stage *model.RenderStage) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", Transientf(err, "create work dir: %v", err)
	}
	output := filepath.Join(workDir, stage.Output)

	var args []string
	switch stage.Kind {
	case model.StageSceneRender:
		args = e.sceneArgs(stage, output)
	case model.StageTransitionBlend:
		args = e.transitionArgs(workDir, stage, output)
	case model.StageAudioMix:
		args = e.audioMixArgs(stage, output)
	case model.StageFinalEncode:
		args = e.encodeArgs(workDir, stage, output)
	default:
		return "", Permanentf(nil, "unknown stage kind %q", stage.Kind)
	}

	log.Printf("ffmpeg stage %s: %s %s", stage.ID, e.binary, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, e.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", classify(ctx, err, out)
	}
	return output, nil
}

func (e *FFmpeg) sceneArgs(stage *model.RenderStage, output string) []string {
	sc := stage.Scene
	args := []string{"-y"}

	if sc.MediaType == model.MediaTypeImage {
		args = append(args, "-loop", "1", "-t", seconds(sc.Duration), "-i", sc.MediaPath)
	} else {
		if sc.TrimStart != nil {
			args = append(args, "-ss", seconds(*sc.TrimStart))
		}
		if sc.TrimEnd != nil {
			args = append(args, "-to", seconds(*sc.TrimEnd))
		}
		args = append(args, "-i", sc.MediaPath, "-t", seconds(sc.Duration))
	}

	filters := []string{"scale=trunc(iw/2)*2:trunc(ih/2)*2"}
	if fx := sc.Effects; fx != nil {
		if fx.Zoom != nil && *fx.Zoom != 1.0 {
			filters = append(filters, fmt.Sprintf("scale=iw*%s:ih*%s", num(*fx.Zoom), num(*fx.Zoom)))
		}
		if fx.Rotation != nil && *fx.Rotation != 0 {
			filters = append(filters, fmt.Sprintf("rotate=%s*PI/180", num(*fx.Rotation)))
		}
		if fx.Speed != nil && *fx.Speed != 1.0 {
			filters = append(filters, fmt.Sprintf("setpts=PTS/%s", num(*fx.Speed)))
		}
		if fx.Brightness != nil && *fx.Brightness != 1.0 {
			// eq expects an additive brightness around 0.
			filters = append(filters, fmt.Sprintf("eq=brightness=%s", num(*fx.Brightness-1.0)))
		}
	}
	for _, o := range sc.Overlays {
		filters = append(filters, drawtext(&o))
	}

	args = append(args, "-vf", strings.Join(filters, ","), "-an", output)
	return args
}

func (e *FFmpeg) transitionArgs(workDir string, stage *model.RenderStage, output string) []string {
	tr := stage.Transition
	from := filepath.Join(workDir, stage.Inputs[0])
	to := filepath.Join(workDir, stage.Inputs[1])

	xfade := "fade"
	switch tr.Type {
	case model.TransitionSlideLeft:
		xfade = "slideleft"
	case model.TransitionSlideRight:
		xfade = "slideright"
	case model.TransitionSlideUp:
		xfade = "slideup"
	case model.TransitionSlideDown:
		xfade = "slidedown"
	case model.TransitionDissolve:
		xfade = "dissolve"
	case model.TransitionWipe:
		xfade = "wipeleft"
	}

	return []string{
		"-y", "-i", from, "-i", to,
		"-filter_complex", fmt.Sprintf("xfade=transition=%s:duration=%s:offset=0", xfade, num(tr.Duration)),
		"-an", output,
	}
}

func (e *FFmpeg) audioMixArgs(stage *model.RenderStage, output string) []string {
	mix := stage.AudioMix
	args := []string{"-y"}
	var labels []string
	var filters []string

	idx := 0
	for _, tr := range mix.Tracks {
		args = append(args, "-i", tr.Path)
		label := fmt.Sprintf("a%d", idx)
		filters = append(filters, trackFilter(idx, &tr, label))
		labels = append(labels, "["+label+"]")
		idx++
	}
	if bg := mix.Background; bg != nil {
		if bg.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", bg.Path)
		label := fmt.Sprintf("a%d", idx)
		filters = append(filters, trackFilter(idx, bg, label))
		labels = append(labels, "["+label+"]")
		idx++
	}

	filters = append(filters, fmt.Sprintf("%samix=inputs=%d:duration=longest[out]", strings.Join(labels, ""), idx))
	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[out]",
		"-t", seconds(mix.Duration),
		output,
	)
	return args
}

func trackFilter(idx int, tr *model.AudioTrack, label string) string {
	parts := []string{fmt.Sprintf("volume=%s", num(tr.Volume))}
	if tr.FadeIn > 0 {
		parts = append(parts, fmt.Sprintf("afade=t=in:d=%s", num(tr.FadeIn)))
	}
	if tr.FadeOut > 0 {
		parts = append(parts, fmt.Sprintf("afade=t=out:st=%s:d=%s", num(tr.Duration-tr.FadeOut), num(tr.FadeOut)))
	}
	if tr.Offset > 0 {
		ms := int64(tr.Offset * 1000)
		parts = append(parts, fmt.Sprintf("adelay=%d|%d", ms, ms))
	}
	return fmt.Sprintf("[%d]%s[%s]", idx, strings.Join(parts, ","), label)
}

func (e *FFmpeg) encodeArgs(workDir string, stage *model.RenderStage, output string) []string {
	enc := stage.Encode

	// Concat the visual artifacts (scene outputs; transition stages already
	// blended their neighbours' boundaries), then mux the mixed audio track.
	var visual []string
	var audio string
	for _, in := range stage.Inputs {
		if strings.HasPrefix(in, "audio_") {
			audio = filepath.Join(workDir, in)
			continue
		}
		if strings.HasPrefix(in, "scene_") {
			visual = append(visual, filepath.Join(workDir, in))
		}
	}

	args := []string{"-y"}
	for _, v := range visual {
		args = append(args, "-i", v)
	}
	if audio != "" {
		args = append(args, "-i", audio)
	}
	if enc.WatermarkPath != "" {
		args = append(args, "-i", enc.WatermarkPath)
	}

	var fc strings.Builder
	for i := range visual {
		fmt.Fprintf(&fc, "[%d:v]", i)
	}
	fmt.Fprintf(&fc, "concat=n=%d:v=1:a=0[vc];", len(visual))
	fmt.Fprintf(&fc, "[vc]scale=%d:%d,fps=%d[vs]", enc.Width, enc.Height, enc.FPS)
	outLabel := "vs"
	if enc.WatermarkPath != "" {
		wmIdx := len(visual)
		if audio != "" {
			wmIdx++
		}
		fmt.Fprintf(&fc, ";[vs][%d:v]overlay=W-w-10:H-h-10[vw]", wmIdx)
		outLabel = "vw"
	}

	codec := enc.Codec
	if codec == "h264" {
		codec = "libx264"
	}

	args = append(args, "-filter_complex", fc.String(), "-map", "["+outLabel+"]")
	if audio != "" {
		args = append(args, "-map", strconv.Itoa(len(visual))+":a")
	}
	args = append(args,
		"-c:v", codec,
		"-b:v", qualityBitrate[enc.Quality],
		"-t", seconds(enc.Duration),
		output,
	)
	return args
}

// drawtext renders one overlay window. Symbolic positions map to expressions
// over the frame size.
func drawtext(o *model.TextOverlay) string {
	x := positionExpr(o.Position.X, map[string]string{
		"center": "(w-tw)/2", "left": "0", "right": "w-tw",
	})
	y := positionExpr(o.Position.Y, map[string]string{
		"center": "(h-th)/2", "top": "0", "bottom": "h-th",
	})

	parts := []string{
		fmt.Sprintf("text='%s'", escapeText(o.Text)),
		fmt.Sprintf("fontsize=%d", *o.FontSize),
		fmt.Sprintf("fontcolor=%s", *o.Color),
		"x=" + x,
		"y=" + y,
	}
	if o.BackgroundColor != nil {
		parts = append(parts, "box=1", fmt.Sprintf("boxcolor=%s", *o.BackgroundColor))
	}
	if o.StartTime != nil && o.Duration != nil {
		parts = append(parts, fmt.Sprintf("enable='between(t,%s,%s)'",
			num(*o.StartTime), num(*o.StartTime+*o.Duration)))
	}
	return "drawtext=" + strings.Join(parts, ":")
}

func positionExpr(v string, symbolic map[string]string) string {
	if expr, ok := symbolic[strings.ToLower(v)]; ok {
		return expr
	}
	return v
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	return s
}

// classify maps an ffmpeg invocation failure onto the transient/permanent
// taxonomy: context expiry and missing binary are transient, a non-zero exit
// means the instruction set itself was rejected.
func classify(ctx context.Context, err error, out []byte) error {
	if ctx.Err() != nil {
		return Transientf(err, "render timed out: %v", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Permanentf(err, "ffmpeg exited %d: %s", exitErr.ExitCode(), tail(out, 400))
	}
	return Transientf(err, "ffmpeg failed to run: %v", err)
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

func seconds(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func num(v float64) string     { return strconv.FormatFloat(v, 'f', -1, 64) }
