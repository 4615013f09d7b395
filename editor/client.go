// Package editor implements the client for the remote image edit service.
// The service speaks the images/edits multipart protocol: an instruction,
// one base image and an optional mask go out, one edited image comes back.
// All failure modes are normalized into a small set of descriptive errors;
// callers never need to distinguish transport from API failures.
package editor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"retouch-server/core"
)

const (
	// DefaultEndpoint is the API base URL used when none is configured.
	DefaultEndpoint = "https://api.openai.com"
	// DefaultModel is the image edit model used when none is configured.
	DefaultModel = "gpt-image-1"
	// DefaultTimeout bounds a single edit call. Image edits are slow;
	// two minutes matches what the upstream service itself allows.
	DefaultTimeout = 2 * time.Minute

	editsPath = "/v1/images/edits"
)

// Sentinel errors for edit operations.
var (
	// ErrUnavailable is returned when the edit service cannot be reached.
	ErrUnavailable = errors.New("edit service unavailable")
	// ErrRequestFailed is returned when the service rejects or fails a request.
	ErrRequestFailed = errors.New("edit request failed")
	// ErrEmptyResult is returned when a successful response carries no image.
	ErrEmptyResult = errors.New("edit response contained no image")
	// ErrNotConfigured is returned when no API key is configured.
	ErrNotConfigured = errors.New("edit service API key not configured")
)

// Client communicates with the remote edit service.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a client with explicit configuration. Empty endpoint or
// model fall back to the defaults.
func NewClient(endpoint, apiKey, model string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientFromEnv creates a client from IMAGE_EDIT_ENDPOINT,
// IMAGE_EDIT_API_KEY and IMAGE_EDIT_MODEL.
func NewClientFromEnv() *Client {
	return NewClient(
		os.Getenv("IMAGE_EDIT_ENDPOINT"),
		os.Getenv("IMAGE_EDIT_API_KEY"),
		os.Getenv("IMAGE_EDIT_MODEL"),
		DefaultTimeout,
	)
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the configured API base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type editResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Edit sends one edit request and returns the edited raster. The mask is
// optional; when present it must cover the same image the instruction
// applies to. The call runs to completion; there is no cancellation beyond
// the passed context.
func (c *Client) Edit(ctx context.Context, instruction string, image core.Raster, mask *core.Raster) (core.Raster, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.model); err != nil {
		return core.Raster{}, fmt.Errorf("failed to build request: %w", err)
	}
	if err := mw.WriteField("prompt", instruction); err != nil {
		return core.Raster{}, fmt.Errorf("failed to build request: %w", err)
	}

	part, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return core.Raster{}, fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return core.Raster{}, fmt.Errorf("failed to build request: %w", err)
	}

	if mask != nil {
		part, err := mw.CreateFormFile("mask", "mask.png")
		if err != nil {
			return core.Raster{}, fmt.Errorf("failed to build request: %w", err)
		}
		if _, err := part.Write(mask.Data); err != nil {
			return core.Raster{}, fmt.Errorf("failed to build request: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return core.Raster{}, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+editsPath, &body)
	if err != nil {
		return core.Raster{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Raster{}, c.classifyError(err)
	}
	defer resp.Body.Close()

	var parsed editResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return core.Raster{}, fmt.Errorf("%w: unreadable response (status %d)", ErrRequestFailed, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return core.Raster{}, fmt.Errorf("%w: %s", ErrRequestFailed, parsed.Error.Message)
		}
		return core.Raster{}, fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return core.Raster{}, ErrEmptyResult
	}

	data, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return core.Raster{}, fmt.Errorf("%w: undecodable image payload", ErrRequestFailed)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return core.Raster{}, fmt.Errorf("%w: result is not a valid PNG", ErrRequestFailed)
	}

	return core.Raster{
		Data:   data,
		MIME:   core.CanonicalMIME,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// classifyError maps transport errors to sentinel errors with a descriptive
// message.
func (c *Client) classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timed out waiting for %s", ErrUnavailable, c.endpoint)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: connection refused at %s", ErrUnavailable, c.endpoint)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
