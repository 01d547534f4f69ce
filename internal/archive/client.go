package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

const (
	DefaultBaseURL         = "https://archive.org"
	DefaultMinPayloadBytes = 1024

	metadataPath = "/metadata/"
	downloadPath = "/download/"

	maxMetadataBytes = 32 << 20
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	MinPayloadBytes   int64
	HTTPClient        *http.Client
}

// Client talks to the catalog's metadata and download endpoints.
//
// Every outbound request passes through a shared rate limiter so that
// concurrent workflows do not hammer the catalog.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	minPayload int64
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		// Timeout covers the whole body read, which is wrong for large
		// downloads; the fetcher relies on ctx instead.
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
		}}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "archive-relay-bot/1.0"
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	minPayload := opts.MinPayloadBytes
	if minPayload <= 0 {
		minPayload = DefaultMinPayloadBytes
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(limit, 1),
		minPayload: minPayload,
	}
}

// MinPayloadBytes is the size below which files are treated as sidecars.
func (c *Client) MinPayloadBytes() int64 {
	return c.minPayload
}

// FetchMetadata performs one request against the metadata endpoint. Every
// returned FileEntry carries the item identifier.
func (c *Client) FetchMetadata(ctx context.Context, identifier string) (model.ItemMetadata, error) {
	endpoint := c.baseURL + metadataPath + url.PathEscape(identifier)

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return model.ItemMetadata{}, &FetchError{Op: "fetch metadata", URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ItemMetadata{}, &FetchError{Op: "fetch metadata", URL: endpoint, StatusCode: resp.StatusCode}
	}

	var payload metadataResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&payload); err != nil {
		return model.ItemMetadata{}, &FetchError{Op: "decode metadata", URL: endpoint, Err: err}
	}
	// The endpoint answers 200 with "{}" for unknown identifiers.
	if payload.Error != "" {
		return model.ItemMetadata{}, &FetchError{Op: "fetch metadata", URL: endpoint, Err: fmt.Errorf("%s: %w", payload.Error, ErrNotFound)}
	}
	if len(payload.Files) == 0 && payload.Metadata.Identifier.first() == "" {
		return model.ItemMetadata{}, &FetchError{Op: "fetch metadata", URL: endpoint, Err: ErrNotFound}
	}

	item := payload.toModel(identifier)
	log.Printf("[archive] fetched metadata for %s (%d files)", item.Identifier, len(item.Files))
	return item, nil
}

// DownloadURL builds the download endpoint for a file of an item. Each path
// element of the name is escaped separately so nested names keep their
// slashes.
func (c *Client) DownloadURL(identifier, name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return c.baseURL + downloadPath + url.PathEscape(identifier) + "/" + strings.Join(parts, "/")
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return c.httpClient.Do(req)
}
