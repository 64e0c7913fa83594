// Package replicate talks to the Replicate predictions API.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/photoshot-be/internal/domain"
)

// ErrMissingToken indicates that the client was configured without credentials
var ErrMissingToken = errors.New("replicate: api token is required")

const (
	defaultBaseURL      = "https://api.replicate.com/v1"
	defaultPollInterval = time.Second
	defaultTimeout      = 30 * time.Second
)

// Options configures the Replicate client
type Options struct {
	APIToken string
	BaseURL  string
	// EnhanceVersion is the face restoration model version, e.g. tencentarc/gfpgan
	EnhanceVersion string
	PollInterval   time.Duration
	EnhanceTimeout time.Duration
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client performs HTTP calls to Replicate
type Client struct {
	token          string
	baseURL        string
	enhanceVersion string
	pollInterval   time.Duration
	enhanceTimeout time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

type createRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	Detail string          `json:"detail"`
}

// NewClient constructs a client with defaults applied
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("replicate: invalid base url: %w", err)
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		token:          strings.TrimSpace(opts.APIToken),
		baseURL:        baseURL,
		enhanceVersion: strings.TrimSpace(opts.EnhanceVersion),
		pollInterval:   pollInterval,
		enhanceTimeout: opts.EnhanceTimeout,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls
func (c *Client) HasCredentials() bool {
	return c.token != ""
}

// StartJob creates one prediction and returns immediately with its initial status
func (c *Client) StartJob(ctx context.Context, spec domain.JobSpec) (domain.ProviderJob, error) {
	input := map[string]any{
		"prompt":          spec.Prompt,
		"negative_prompt": spec.NegativePrompt,
	}
	if spec.Seed != nil {
		input["seed"] = *spec.Seed
	}

	resp, err := c.create(ctx, spec.ModelVersionID, input)
	if err != nil {
		return domain.ProviderJob{}, err
	}
	return resp.toJob()
}

// GetJobStatus fetches the current state of a prediction
func (c *Client) GetJobStatus(ctx context.Context, id string) (domain.ProviderJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ProviderJob{}, errors.New("replicate: prediction id is required")
	}

	var resp predictionResponse
	if err := c.do(ctx, http.MethodGet, "/predictions/"+url.PathEscape(id), nil, &resp); err != nil {
		return domain.ProviderJob{}, err
	}
	return resp.toJob()
}

// Enhance runs the face restoration model on imageURL, waits for it to finish
// and returns the URL of the restored image.
func (c *Client) Enhance(ctx context.Context, imageURL string) (string, error) {
	if c.enhanceVersion == "" {
		return "", errors.New("replicate: enhancement version is not configured")
	}
	if c.enhanceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.enhanceTimeout)
		defer cancel()
	}

	resp, err := c.create(ctx, c.enhanceVersion, map[string]any{"img": imageURL})
	if err != nil {
		return "", err
	}
	job, err := resp.toJob()
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !job.Status.Terminal() {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("replicate: waiting for enhancement %s: %w", job.ID, ctx.Err())
		case <-ticker.C:
		}
		job, err = c.GetJobStatus(ctx, job.ID)
		if err != nil {
			return "", err
		}
	}

	if job.Status == domain.StatusFailed {
		return "", fmt.Errorf("replicate: enhancement %s failed: %s", job.ID, job.Error)
	}
	out := job.OutputURL()
	if out == "" {
		return "", fmt.Errorf("replicate: enhancement %s returned no output", job.ID)
	}

	c.logger.Debug("Enhancement finished",
		slog.String("prediction_id", job.ID),
		slog.String("output_url", out),
	)
	return out, nil
}

// Download fetches a generated image and its content type
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("replicate: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("replicate: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("replicate: download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("replicate: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("replicate: read image: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (c *Client) create(ctx context.Context, version string, input map[string]any) (*predictionResponse, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, errors.New("replicate: model version is required")
	}
	// "owner/model:version" identifiers carry the version after the colon
	if i := strings.LastIndex(version, ":"); i >= 0 {
		version = version[i+1:]
	}

	var resp predictionResponse
	if err := c.do(ctx, http.MethodPost, "/predictions", createRequest{Version: version, Input: input}, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("Prediction created",
		slog.String("prediction_id", resp.ID),
		slog.String("status", resp.Status),
	)
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out *predictionResponse) error {
	if !c.HasCredentials() {
		return ErrMissingToken
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("replicate: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("replicate: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var detail predictionResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
			return fmt.Errorf("replicate: status %d: %s", resp.StatusCode, detail.Detail)
		}
		return fmt.Errorf("replicate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("replicate: decode response: %w", err)
	}
	return nil
}

func (r *predictionResponse) toJob() (domain.ProviderJob, error) {
	if strings.TrimSpace(r.ID) == "" {
		return domain.ProviderJob{}, errors.New("replicate: response is missing prediction id")
	}
	outputs, err := decodeOutput(r.Output)
	if err != nil {
		return domain.ProviderJob{}, err
	}
	job := domain.ProviderJob{
		ID:         r.ID,
		Status:     domain.ParseStatus(r.Status),
		OutputURLs: outputs,
	}
	if r.Error != nil {
		job.Error = fmt.Sprint(r.Error)
	}
	return job, nil
}

// decodeOutput accepts null, a single URL or a list of URLs
func decodeOutput(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("replicate: decode output: %w", err)
		}
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("replicate: decode output: %w", err)
	}
	return list, nil
}
