package media

import (
	"context"
	"log"
	"strings"

	"github.com/videoweave/api/internal/model"
)

// Resolver maps spec source strings (uploaded file ids or remote URLs) to
// concrete, validated media descriptors.
type Resolver struct {
	store   *DiskStore
	fetcher *Fetcher
	prober  DurationProber
}

// NewResolver creates a resolver. prober may be nil, in which case time-based
// media resolve with zero duration and scenes fall back to explicit or default
// durations.
func NewResolver(store *DiskStore, fetcher *Fetcher, prober DurationProber) *Resolver {
	return &Resolver{store: store, fetcher: fetcher, prober: prober}
}

// Resolve turns a single source string into a descriptor. URL sources are
// fetched and persisted locally; file ids are looked up in the upload store.
func (r *Resolver) Resolve(ctx context.Context, source string) (*model.MediaDescriptor, error) {
	var file *model.UploadedFile
	var err error

	if isRemote(source) {
		file, err = r.fetcher.Fetch(ctx, source)
	} else {
		file, err = r.store.Resolve(source)
	}
	if err != nil {
		return nil, err
	}

	desc := &model.MediaDescriptor{
		Source: source,
		Path:   file.Path,
		Type:   file.Type,
		Size:   file.Size,
	}

	if r.prober != nil && (file.Type == model.MediaTypeVideo || file.Type == model.MediaTypeAudio) {
		dur, err := r.prober.Duration(ctx, file.Path)
		if err != nil {
			// Non-fatal: the compiler falls back to explicit or default
			// scene durations.
			log.Printf("probe %s: %v", file.Path, err)
		} else {
			desc.Duration = dur
		}
	}
	return desc, nil
}

// ResolveSpec resolves every source referenced by a composition spec: scene
// media, scene audio, background music and the watermark. The first failing
// reference aborts resolution.
func (r *Resolver) ResolveSpec(ctx context.Context, spec *model.CompositionSpec) (map[string]*model.MediaDescriptor, error) {
	sources := collectSources(spec)
	out := make(map[string]*model.MediaDescriptor, len(sources))
	for _, src := range sources {
		if _, done := out[src]; done {
			continue
		}
		desc, err := r.Resolve(ctx, src)
		if err != nil {
			return nil, err
		}
		out[src] = desc
	}
	return out, nil
}

func collectSources(spec *model.CompositionSpec) []string {
	var sources []string
	for _, s := range spec.Scenes {
		sources = append(sources, s.Media.Source)
		if s.Audio != nil {
			sources = append(sources, s.Audio.Source)
		}
	}
	if spec.GlobalAudio != nil && spec.GlobalAudio.BackgroundMusic != nil {
		sources = append(sources, spec.GlobalAudio.BackgroundMusic.Source)
	}
	if spec.Watermark != nil {
		sources = append(sources, *spec.Watermark)
	}
	return sources
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
