package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/armis/armis/pkg/types"
)

// DefaultFetchTimeout bounds a single stat fetch.
const DefaultFetchTimeout = 5 * time.Second

// SchemeStats is the endpoint scheme resolved against a Source.
const SchemeStats = "stats"

// Fetcher resolves a stat widget endpoint to a value.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (any, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, endpoint string) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, endpoint string) (any, error) { return f(ctx, endpoint) }

// HTTPFetcher GETs a JSON document and reads "value" or "data.value" from it.
// Endpoints are resolved against BaseURL and must stay on its host.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
	Timeout time.Duration
}

// NewHTTPFetcher creates an HTTPFetcher with its own client.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, BaseURL: baseURL, Timeout: timeout}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint string) (any, error) {
	target, err := f.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("stats request to %s returned %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read stats response: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("stats response is not a JSON object: %w", err)
	}
	if v, ok := doc["value"]; ok {
		return v, nil
	}
	if data, ok := doc["data"].(map[string]any); ok {
		if v, ok := data["value"]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("stats response from %s has no value", target)
}

// resolve only yields URLs on the BaseURL host; widget endpoints come from
// callers and must not reach arbitrary hosts.
func (f *HTTPFetcher) resolve(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", types.NewValidationError("endpoint", "invalid endpoint %q: %v", endpoint, err)
	}
	if f.BaseURL == "" {
		return "", types.NewValidationError("endpoint", "endpoint %q needs a stats base url", endpoint)
	}
	base, err := url.Parse(f.BaseURL)
	if err != nil || base.Host == "" {
		return "", types.NewConfigError(err, "invalid stats base url %q", f.BaseURL)
	}
	target := base.ResolveReference(u)
	if !strings.EqualFold(target.Scheme, base.Scheme) || !strings.EqualFold(target.Host, base.Host) {
		return "", types.NewValidationError("endpoint", "endpoint %q is outside the stats base url", endpoint)
	}
	return target.String(), nil
}

// SourceFetcher resolves stats://<category>/<metric> against a Source.
type SourceFetcher struct {
	Source Source
}

func (f *SourceFetcher) Fetch(ctx context.Context, endpoint string) (any, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != SchemeStats {
		return nil, types.NewValidationError("endpoint", "expected stats://<category>/<metric>, got %q", endpoint)
	}
	category := u.Host
	metric := strings.Trim(u.Path, "/")
	if category == "" || metric == "" || category == types.StatCategoryAll {
		return nil, types.NewValidationError("endpoint", "expected stats://<category>/<metric>, got %q", endpoint)
	}
	metrics, err := f.Source.Snapshot(ctx, category)
	if err != nil {
		return nil, err
	}
	v, ok := metrics[metric]
	if !ok {
		return nil, types.NewNotFoundError("metric %s/%s has no value", category, metric)
	}
	return v, nil
}

// MuxFetcher picks a fetcher by endpoint scheme, using Default for
// anything unmatched.
type MuxFetcher struct {
	Schemes map[string]Fetcher
	Default Fetcher
}

// NewMuxFetcher routes stats:// to source and everything else to fallback.
func NewMuxFetcher(source Source, fallback Fetcher) *MuxFetcher {
	return &MuxFetcher{
		Schemes: map[string]Fetcher{SchemeStats: &SourceFetcher{Source: source}},
		Default: fallback,
	}
}

func (m *MuxFetcher) Fetch(ctx context.Context, endpoint string) (any, error) {
	if i := strings.Index(endpoint, "://"); i > 0 {
		if f, ok := m.Schemes[endpoint[:i]]; ok {
			return f.Fetch(ctx, endpoint)
		}
	}
	if m.Default == nil {
		return nil, fmt.Errorf("no fetcher for endpoint %q", endpoint)
	}
	return m.Default.Fetch(ctx, endpoint)
}
