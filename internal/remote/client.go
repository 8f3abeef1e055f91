package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/dgnsrekt/storyreel/internal/audio"
	"github.com/dgnsrekt/storyreel/internal/media"
	"github.com/dgnsrekt/storyreel/internal/subtitle"
	"github.com/dgnsrekt/storyreel/internal/wav"
)

// ErrServiceUnavailable is returned when the encoder service cannot be reached.
var ErrServiceUnavailable = errors.New("encoder service unavailable")

// EncodeServiceError is returned when the encoder service was reached but
// rejected the job. Message is the service's error text, unmodified.
type EncodeServiceError struct {
	StatusCode int
	Message    string
}

func (e *EncodeServiceError) Error() string {
	return e.Message
}

// Client submits render jobs to a remote encoder.
type Client struct {
	endpoint   string
	logger     *slog.Logger
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint. An empty endpoint uses
// DefaultEndpoint. Requests carry no timeout; encodes block for as long as
// the service takes, so callers bound them through the context.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		logger:     logger,
		httpClient: &http.Client{},
	}
}

// Endpoint returns the service URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// RenderRemote packages the image, the narration audio as WAV, and optional
// SRT captions timed from subtitleText, and returns the encoded video.
func (c *Client) RenderRemote(ctx context.Context, imageRef string, buf *audio.SampleBuffer, subtitleText string) (*media.Blob, error) {
	image, err := c.imageDataURI(ctx, imageRef)
	if err != nil {
		return nil, err
	}

	req := RenderRequest{
		Image: image,
		Audio: media.EncodeDataURI(wav.Encode(buf), wav.MIMEType),
	}
	if strings.TrimSpace(subtitleText) != "" {
		srt := subtitle.FormatSRT(subtitle.ComputeTimings(subtitleText, buf.Seconds()))
		req.SRT = &srt
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("submitting remote render",
		"endpoint", c.endpoint,
		"request_bytes", len(body),
		"subtitles", req.SRT != nil,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isConnectError(err) {
			return nil, fmt.Errorf("%w at %s: start the encoder service and try again: %v", ErrServiceUnavailable, c.endpoint, err)
		}
		return nil, fmt.Errorf("remote render request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out RenderResponse
	jsonErr := json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if jsonErr != nil || msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &EncodeServiceError{StatusCode: resp.StatusCode, Message: msg}
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", jsonErr)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "encoder reported failure"
		}
		return nil, &EncodeServiceError{StatusCode: resp.StatusCode, Message: msg}
	}

	blob, err := media.ParseDataURI(out.VideoData)
	if err != nil {
		return nil, fmt.Errorf("invalid video data: %w", err)
	}

	c.logger.Info("remote render complete",
		"mime_type", blob.MIMEType,
		"bytes", blob.Size(),
		"duration", time.Since(start),
	)
	return blob, nil
}

func (c *Client) imageDataURI(ctx context.Context, ref string) (string, error) {
	if media.IsDataURI(ref) {
		return ref, nil
	}
	blob, err := media.Fetch(ctx, ref, c.httpClient)
	if err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	return blob.DataURI(), nil
}

// isConnectError reports whether err happened while establishing the
// connection, before any request bytes reached the service.
func isConnectError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
