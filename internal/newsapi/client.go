// Package newsapi performs the outbound calls to the news API and checks
// the responses handed back by the orchestrator's HTTP task.
package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"newsetl/internal/config"
	"newsetl/internal/logger"
	"newsetl/internal/pipeline"
	"newsetl/internal/state"
	"newsetl/internal/storage"
	"newsetl/pkg/utils"
)

// Client errors.
var (
	ErrMissingAPIKey = errors.New("no news API key found")
	ErrBlankArgument = errors.New("argument cannot be left blank")
	ErrNilResponse   = errors.New("response is nil")
)

// Defaults used when the configuration leaves them empty.
const (
	DefaultHeadlinesEndpoint = "https://newsapi.org/v2/top-headlines?"
	DefaultSourcesEndpoint   = "https://newsapi.org/v2/sources?language=en"
	NewsSourcesLabel         = "english_news_sources"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Client wraps the news API and stages its responses.
type Client struct {
	http    Doer
	storage *storage.FileStorage
	vars    state.Variables
	logger  *logger.Logger
	headers *utils.HTTPHelper
	cfg     config.NewsAPIConfig
}

// NewClient creates a client using a plain http.Client with the configured timeout.
func NewClient(cfg config.NewsAPIConfig, store *storage.FileStorage, vars state.Variables, log *logger.Logger) *Client {
	return NewClientWithDoer(&http.Client{Timeout: cfg.Timeout()}, cfg, store, vars, log)
}

// NewClientWithDoer creates a client with an injected HTTP sender.
func NewClientWithDoer(doer Doer, cfg config.NewsAPIConfig, store *storage.FileStorage, vars state.Variables, log *logger.Logger) *Client {
	return &Client{
		http:    doer,
		storage: store,
		vars:    vars,
		logger:  log,
		headers: utils.NewHTTPHelper(),
		cfg:     cfg,
	}
}

// GetNews checks the sources-listing response. Only an exact 200 is a
// success: its JSON body is staged in the news directory under the
// "english_news_sources" label. Every other status, other 2xx codes
// included, reports false and stages nothing.
//
// The pipeline is override when set, otherwise the published
// current_dag_id variable. newsDir defaults to that pipeline's news directory.
func (c *Client) GetNews(resp *http.Response, newsDir string, override pipeline.ID) (bool, int, error) {
	c.logger.Info("Running get_news")

	if resp == nil {
		return false, 0, ErrNilResponse
	}

	status := resp.StatusCode

	id, err := c.resolvePipeline(override)
	if err != nil {
		return false, status, err
	}

	if newsDir == "" {
		newsDir, err = c.storage.NewsDirectory(id)
		if err != nil {
			return false, status, err
		}
	}

	if status != http.StatusOK {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}

		c.logger.Warn("News sources request was not successful", "status", status, "pipeline", string(id))

		return false, status, nil
	}

	doc, err := DecodeBody(resp)
	if err != nil {
		return false, status, err
	}

	path, err := c.storage.WriteJSON(doc, newsDir, "", NewsSourcesLabel)
	if err != nil {
		return false, status, fmt.Errorf("failed to stage news sources: %w", err)
	}

	c.logger.Info("Staged news sources", "path", path)

	return true, status, nil
}

func (c *Client) resolvePipeline(override pipeline.ID) (pipeline.ID, error) {
	if override != "" {
		return pipeline.Parse(string(override))
	}

	if c.vars == nil {
		return "", fmt.Errorf("%w: no pipeline given and no shared state configured", pipeline.ErrBlankPipeline)
	}

	name, err := c.vars.Get(state.KeyPipeline)
	if err != nil {
		return "", fmt.Errorf("failed to read current pipeline: %w", err)
	}

	return pipeline.Parse(name)
}

// GetSources requests the english news sources listing.
func (c *Client) GetSources(ctx context.Context) (*http.Response, error) {
	c.logger.Info("Running get_sources")

	apiKey, err := c.apiKey("")
	if err != nil {
		return nil, err
	}

	endpoint := c.cfg.SourcesURL
	if endpoint == "" {
		endpoint = DefaultSourcesEndpoint
	}

	sep := "&"
	if !strings.Contains(endpoint, "?") {
		sep = "?"
	} else if strings.HasSuffix(endpoint, "?") || strings.HasSuffix(endpoint, "&") {
		sep = ""
	}

	return c.get(ctx, endpoint+sep+"apiKey="+apiKey)
}

// GetSourceHeadlines requests the top headlines of one source. The URL is
// <endpoint>sources=<id>&apiKey=<key>; endpoint defaults to the configured
// headlines URL, then to the public top-headlines endpoint. apiKey defaults
// to the configured key.
func (c *Client) GetSourceHeadlines(ctx context.Context, sourceID, endpoint, apiKey string) (*http.Response, error) {
	c.logger.Info("Running get_source_headlines", "source", sourceID)

	if strings.TrimSpace(sourceID) == "" {
		return nil, fmt.Errorf("%w: source_id", ErrBlankArgument)
	}

	key, err := c.apiKey(apiKey)
	if err != nil {
		return nil, err
	}

	return c.get(ctx, c.headlinesEndpoint(endpoint)+"sources="+sourceID+"&apiKey="+key)
}

// GetKeywordHeadlines requests the top headlines matching a keyword query.
func (c *Client) GetKeywordHeadlines(ctx context.Context, keyword, endpoint, apiKey string) (*http.Response, error) {
	c.logger.Info("Running get_keyword_headlines", "keyword", keyword)

	if strings.TrimSpace(keyword) == "" {
		return nil, fmt.Errorf("%w: keyword", ErrBlankArgument)
	}

	key, err := c.apiKey(apiKey)
	if err != nil {
		return nil, err
	}

	return c.get(ctx, c.headlinesEndpoint(endpoint)+"q="+url.QueryEscape(keyword)+"&apiKey="+key)
}

func (c *Client) headlinesEndpoint(endpoint string) string {
	if endpoint != "" {
		return endpoint
	}

	if c.cfg.HeadlinesURL != "" {
		return c.cfg.HeadlinesURL
	}

	return DefaultHeadlinesEndpoint
}

func (c *Client) apiKey(explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}

	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		return key, nil
	}

	return "", ErrMissingAPIKey
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = c.headers.BuildHeaders(c.cfg.UserAgent, nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// DecodeBody reads and closes the response body, decoding any JSON value.
func DecodeBody(resp *http.Response) (any, error) {
	if resp == nil || resp.Body == nil {
		return nil, ErrNilResponse
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidJSON, err)
	}

	return doc, nil
}

// DecodeJSON reads and closes the response body, decoding it as a JSON object.
func DecodeJSON(resp *http.Response) (map[string]any, error) {
	doc, err := DecodeBody(resp)
	if err != nil || doc == nil {
		return nil, err
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: response body is not a JSON object", storage.ErrInvalidJSON)
	}

	return obj, nil
}
