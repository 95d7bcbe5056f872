package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/videoweave/api/internal/model"
)

// Fetcher downloads remote media sources and persists them into the upload
// store so later stages reuse the local copy.
type Fetcher struct {
	httpClient     *http.Client
	store          *DiskStore
	maxSize        int64
	allowedDomains []string
}

// NewFetcher creates a fetcher. maxSize caps the downloaded payload in bytes;
// an empty allowedDomains list admits any host.
func NewFetcher(store *DiskStore, maxSize int64, allowedDomains []string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		httpClient:     &http.Client{Timeout: timeout},
		store:          store,
		maxSize:        maxSize,
		allowedDomains: allowedDomains,
	}
}

// Fetch downloads rawURL, validates it against the domain allow-list and the
// size cap, and saves it into the store under a fresh file id.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*model.UploadedFile, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, resolutionErrorf(KindUnreachableSource, rawURL, "not a valid http(s) url")
	}

	if !f.domainAllowed(u.Hostname()) {
		return nil, resolutionErrorf(KindDomainNotAllowed, rawURL, "host %q is not on the allow-list", u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, resolutionErrorf(KindUnreachableSource, rawURL, "build request: %v", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, resolutionErrorf(KindUnreachableSource, rawURL, "fetch: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resolutionErrorf(KindUnreachableSource, rawURL, "unexpected status %d", resp.StatusCode)
	}
	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, resolutionErrorf(KindSizeLimitExceeded, rawURL,
			"payload is %d bytes, cap is %d", resp.ContentLength, f.maxSize)
	}

	name := path.Base(u.Path)
	if !AllowedExtension(path.Ext(name)) {
		return nil, resolutionErrorf(KindUnreachableSource, rawURL, "unsupported file type %q", path.Ext(name))
	}

	body := io.Reader(resp.Body)
	if f.maxSize > 0 {
		// Guard against servers that omit or understate Content-Length.
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}

	file, err := f.store.Save(uuid.New().String(), name, body)
	if err != nil {
		return nil, fmt.Errorf("persist fetched file: %w", err)
	}
	if f.maxSize > 0 && file.Size > f.maxSize {
		f.store.Delete(file.FileID)
		return nil, resolutionErrorf(KindSizeLimitExceeded, rawURL,
			"payload exceeds the %d byte cap", f.maxSize)
	}
	return file, nil
}

func (f *Fetcher) domainAllowed(host string) bool {
	if len(f.allowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range f.allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
