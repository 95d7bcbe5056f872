package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/videoweave/api/internal/model"
)

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func writeUpload(t *testing.T, store *DiskStore, fileID, name, content string) {
	t.Helper()
	if _, err := store.Save(fileID, name, strings.NewReader(content)); err != nil {
		t.Fatalf("save upload: %v", err)
	}
}

func wantResolutionError(t *testing.T, err error, kind string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", kind)
	}
	re, ok := AsResolutionError(err)
	if !ok {
		t.Fatalf("expected ResolutionError, got %T: %v", err, err)
	}
	if re.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%s)", kind, re.Kind, re.Message)
	}
}

func TestStoreResolve(t *testing.T) {
	store := newTestStore(t)
	writeUpload(t, store, "abc", "clip.mp4", "video-bytes")

	file, err := store.Resolve("abc")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if file.Type != model.MediaTypeVideo {
		t.Errorf("type = %q, want video", file.Type)
	}
	if file.Size != int64(len("video-bytes")) {
		t.Errorf("size = %d, want %d", file.Size, len("video-bytes"))
	}
}

func TestStoreResolveNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Resolve("missing")
	wantResolutionError(t, err, KindNotFound)
}

func TestStoreRejectsUnknownExtension(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("x", "script.exe", strings.NewReader("nope"))
	if err == nil {
		t.Fatal("expected error for disallowed extension")
	}
}

func TestFetchPersistsRemoteFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	fetcher := NewFetcher(store, 1024, nil, time.Second)

	file, err := fetcher.Fetch(context.Background(), srv.URL+"/logo.png")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if file.Type != model.MediaTypeImage {
		t.Errorf("type = %q, want image", file.Type)
	}

	// Downloaded file must be reusable through the store.
	again, err := store.Resolve(file.FileID)
	if err != nil {
		t.Fatalf("resolve persisted file: %v", err)
	}
	data, _ := os.ReadFile(again.Path)
	if string(data) != "png-bytes" {
		t.Errorf("persisted content = %q", data)
	}
}

func TestFetchSizeLimitExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	store := newTestStore(t)
	fetcher := NewFetcher(store, 16, nil, time.Second)

	_, err := fetcher.Fetch(context.Background(), srv.URL+"/big.jpg")
	wantResolutionError(t, err, KindSizeLimitExceeded)

	// The oversized partial download must not linger in the store.
	entries, _ := filepath.Glob(filepath.Join(store.Dir(), "*"))
	if len(entries) != 0 {
		t.Errorf("store not cleaned up: %v", entries)
	}
}

func TestFetchDomainNotAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	fetcher := NewFetcher(store, 1024, []string{"cdn.example.com"}, time.Second)

	_, err := fetcher.Fetch(context.Background(), srv.URL+"/a.png")
	wantResolutionError(t, err, KindDomainNotAllowed)
}

func TestFetchAllowedSubdomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	store := newTestStore(t)
	fetcher := NewFetcher(store, 1024, []string{u.Hostname()}, time.Second)

	if _, err := fetcher.Fetch(context.Background(), srv.URL+"/a.png"); err != nil {
		t.Fatalf("fetch from allow-listed host failed: %v", err)
	}
}

func TestFetchUnreachableSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	srv.Close() // refuse connections

	store := newTestStore(t)
	fetcher := NewFetcher(store, 1024, nil, time.Second)

	_, err := fetcher.Fetch(context.Background(), srv.URL+"/a.png")
	wantResolutionError(t, err, KindUnreachableSource)
}

type fakeProber struct {
	durations map[string]float64
}

func (p *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return p.durations[filepath.Base(path)], nil
}

func TestResolverProbesVideoDuration(t *testing.T) {
	store := newTestStore(t)
	writeUpload(t, store, "vid", "clip.mp4", "bytes")
	resolver := NewResolver(store, nil, &fakeProber{durations: map[string]float64{"vid.mp4": 12.5}})

	desc, err := resolver.Resolve(context.Background(), "vid")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if desc.Duration != 12.5 {
		t.Errorf("duration = %v, want 12.5", desc.Duration)
	}
}

func TestResolverSkipsProbeForImages(t *testing.T) {
	store := newTestStore(t)
	writeUpload(t, store, "img", "photo.png", "bytes")
	resolver := NewResolver(store, nil, &fakeProber{durations: map[string]float64{"img.png": 99}})

	desc, err := resolver.Resolve(context.Background(), "img")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if desc.Duration != 0 {
		t.Errorf("image duration = %v, want 0", desc.Duration)
	}
}

func TestResolveSpecCollectsAllSources(t *testing.T) {
	store := newTestStore(t)
	writeUpload(t, store, "m1", "a.png", "x")
	writeUpload(t, store, "m2", "b.mp4", "x")
	writeUpload(t, store, "a1", "t.mp3", "x")
	writeUpload(t, store, "bgm", "bed.mp3", "x")
	writeUpload(t, store, "wm", "logo.png", "x")
	resolver := NewResolver(store, nil, nil)

	wm := "wm"
	spec := &model.CompositionSpec{
		Title: "t",
		Scenes: []model.Scene{
			{ID: "s1", Media: model.Media{Type: model.MediaTypeImage, Source: "m1"},
				Audio: &model.Audio{Source: "a1"}},
			{ID: "s2", Media: model.Media{Type: model.MediaTypeVideo, Source: "m2"}},
		},
		GlobalAudio: &model.GlobalAudio{BackgroundMusic: &model.BackgroundMusic{Source: "bgm"}},
		Watermark:   &wm,
	}

	media, err := resolver.ResolveSpec(context.Background(), spec)
	if err != nil {
		t.Fatalf("resolve spec failed: %v", err)
	}
	for _, src := range []string{"m1", "m2", "a1", "bgm", "wm"} {
		if media[src] == nil {
			t.Errorf("source %q not resolved", src)
		}
	}
}

func TestResolveSpecFailsOnMissingReference(t *testing.T) {
	store := newTestStore(t)
	writeUpload(t, store, "m1", "a.png", "x")
	resolver := NewResolver(store, nil, nil)

	spec := &model.CompositionSpec{
		Title: "t",
		Scenes: []model.Scene{
			{ID: "s1", Media: model.Media{Type: model.MediaTypeImage, Source: "m1"}},
			{ID: "s2", Media: model.Media{Type: model.MediaTypeVideo, Source: "ghost"}},
		},
	}

	_, err := resolver.ResolveSpec(context.Background(), spec)
	wantResolutionError(t, err, KindNotFound)
}
