package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"phylogen/internal/logging"
)

// ErrUnavailable is returned when the classification cannot be fetched and
// no cached copy exists. It is fatal for the resolution pass.
var ErrUnavailable = errors.New("classify: classification data unavailable")

const defaultBaseURL = "https://glottolog.org/static/download"

// Source loads a Classification release, preferring the on-disk cache and
// falling back to a one-time network fetch that is then persisted.
type Source struct {
	baseURL    string
	cacheDir   string
	httpClient *http.Client
	logger     *slog.Logger
}

// SourceOption configures a Source during construction.
type SourceOption func(*Source)

// WithBaseURL overrides the download location.
func WithBaseURL(u string) SourceOption { return func(s *Source) { s.baseURL = u } }

// WithCacheDir overrides the cache directory.
func WithCacheDir(dir string) SourceOption { return func(s *Source) { s.cacheDir = dir } }

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) SourceOption { return func(s *Source) { s.httpClient = c } }

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *slog.Logger) SourceOption { return func(s *Source) { s.logger = l } }

// NewSource builds a Source with sensible defaults: the public download
// site and a per-user cache directory.
func NewSource(opts ...SourceOption) *Source {
	s := &Source{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheDir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			s.cacheDir = filepath.Join(dir, "phylogen")
		} else {
			s.cacheDir = ".phylogen-cache"
		}
	}
	return s
}

func (s *Source) cachePath(release string) string {
	return filepath.Join(s.cacheDir, fmt.Sprintf("classification-%s.json", release))
}

// Load returns the classification for a release. A cache hit short-circuits
// the network; a cache miss fetches, persists, and parses. Fetch failure
// with no usable cache wraps ErrUnavailable.
func (s *Source) Load(ctx context.Context, release string) (*Classification, error) {
	path := s.cachePath(release)
	if data, err := os.ReadFile(path); err == nil {
		c, err := parse(data, release)
		if err == nil {
			s.logger.Debug("classification cache hit", "release", release, "path", path)
			return c, nil
		}
		s.logger.Warn("discarding unreadable classification cache", "path", path, "err", err)
	}

	data, err := s.fetch(ctx, release)
	if err != nil {
		return nil, fmt.Errorf("%w: release %s: %v", ErrUnavailable, release, err)
	}
	c, err := parse(data, release)
	if err != nil {
		return nil, fmt.Errorf("%w: release %s: %v", ErrUnavailable, release, err)
	}
	if err := s.persist(path, data); err != nil {
		s.logger.Warn("could not persist classification cache", "path", path, "err", err)
	}
	return c, nil
}

func (s *Source) fetch(ctx context.Context, release string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/classification.json", s.baseURL, release)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("fetching classification", "url", url)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (s *Source) persist(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func parse(data []byte, release string) (*Classification, error) {
	var c Classification
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Taxa == nil {
		return nil, errors.New("no taxa in classification data")
	}
	if c.Release == "" {
		c.Release = release
	}
	// Normalise keys for case-insensitive lookup.
	taxa := make(map[string]Entry, len(c.Taxa))
	for k, v := range c.Taxa {
		taxa[strings.ToLower(k)] = v
	}
	c.Taxa = taxa
	return &c, nil
}
