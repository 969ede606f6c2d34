package performance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
)

// Loader fetches a performance from a location such as a file path or URL.
type Loader interface {
	// Load reads and validates the performance at location.
	Load(ctx context.Context, location string) (*Performance, error)

	// CanHandle returns true if this loader understands the location.
	CanHandle(location string) bool

	// Name returns the loader name (e.g., "file", "http").
	Name() string
}

// Registry holds the registered loaders. New sources are added by
// registering a loader, without touching the callers.
type Registry struct {
	loaders []Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make([]Loader, 0),
	}
}

// DefaultRegistry returns a registry with the file and HTTP loaders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewHTTPLoader(nil))
	r.Register(NewFileLoader())
	return r
}

// Register adds a loader to the registry.
func (r *Registry) Register(loader Loader) {
	r.loaders = append(r.loaders, loader)
}

// FindLoader finds a loader that can handle the location.
func (r *Registry) FindLoader(location string) Loader {
	for _, l := range r.loaders {
		if l.CanHandle(location) {
			return l
		}
	}
	return nil
}

// GetLoaderByName finds a loader by name.
func (r *Registry) GetLoaderByName(name string) Loader {
	for _, l := range r.loaders {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// ListLoaders returns all registered loader names.
func (r *Registry) ListLoaders() []string {
	names := make([]string, len(r.loaders))
	for i, l := range r.loaders {
		names[i] = l.Name()
	}
	return names
}

// Load resolves location with the first matching loader.
func (r *Registry) Load(ctx context.Context, location string) (*Performance, error) {
	return r.LoadWith(ctx, "", location)
}

// LoadWith loads location with the loader called name, or with the first
// matching loader when name is empty.
func (r *Registry) LoadWith(ctx context.Context, name, location string) (*Performance, error) {
	var l Loader
	if name != "" {
		l = r.GetLoaderByName(name)
		if l == nil {
			return nil, fmt.Errorf("%w: unknown loader %q (available: %v)", ErrNoLoader, name, r.ListLoaders())
		}
	} else {
		l = r.FindLoader(location)
		if l == nil {
			return nil, fmt.Errorf("%w: %q (available: %v)", ErrNoLoader, location, r.ListLoaders())
		}
	}
	return l.Load(ctx, location)
}

// FileLoader reads YAML or JSON scripts from disk.
type FileLoader struct{}

// NewFileLoader creates a file loader.
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

func (l *FileLoader) Name() string { return "file" }

func (l *FileLoader) CanHandle(location string) bool {
	switch strings.ToLower(filepath.Ext(location)) {
	case ".yaml", ".yml", ".json":
		return !strings.Contains(location, "://")
	}
	return false
}

func (l *FileLoader) Load(_ context.Context, location string) (*Performance, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var p Performance
	if strings.EqualFold(filepath.Ext(location), ".json") {
		err = json.Unmarshal(data, &p)
	} else {
		err = yaml.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(location), err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// HTTPLoader fetches a JSON performance from a backend API.
type HTTPLoader struct {
	client *http.Client
}

// NewHTTPLoader creates an HTTP loader. A nil client gets a 10s timeout.
func NewHTTPLoader(client *http.Client) *HTTPLoader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPLoader{client: client}
}

func (l *HTTPLoader) Name() string { return "http" }

func (l *HTTPLoader) CanHandle(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func (l *HTTPLoader) Load(ctx context.Context, location string) (*Performance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch performance: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read performance: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch performance: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var p Performance
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode performance: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
