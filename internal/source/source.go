package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"regwatch/internal/model"
)

// Source supplies the current registry entity list for one observation
// cycle.
type Source interface {
	FetchServers(ctx context.Context) ([]*model.Server, error)
}

// registryFile is the registry document shape: metadata plus the server
// list under data.servers.
type registryFile struct {
	Meta struct {
		LastUpdated string `json:"last_updated"`
	} `json:"meta"`
	Data struct {
		Servers []*model.Server `json:"servers"`
	} `json:"data"`
}

// HTTPSource fetches the registry document over HTTP. An empty server
// list is a valid observation, not an error.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource builds a source for the registry document at url. A zero
// timeout means 30s.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

var _ Source = (*HTTPSource)(nil)

func (s *HTTPSource) FetchServers(ctx context.Context) ([]*model.Server, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var doc registryFile
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode registry document: %w", err)
	}
	return doc.Data.Servers, nil
}

// StaticSource returns a fixed server list; it backs tests and local
// dry runs.
type StaticSource struct {
	Servers []*model.Server
}

var _ Source = (*StaticSource)(nil)

func (s *StaticSource) FetchServers(context.Context) ([]*model.Server, error) {
	return s.Servers, nil
}
