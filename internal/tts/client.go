// Package tts hides the synthesis backends behind one Provider interface.
//
// The Registry owns one configured provider per service kind and answers
// Synthesize and ListVoices for the active one. Each adapter composes and
// decomposes its own external voice-id encoding; nothing outside the adapter
// ever parses a voice id.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerUserAgent   = "User-Agent"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
	userAgent         = "tts-gateway/1.0"
)

// Response limits.
const (
	maxResponseBytes = 32 << 20
	maxErrorDetail   = 512
)

// Error messages.
const (
	errFmtCreateRequest      = "failed to create request: %w"
	errFmtSendRequest        = "failed to send request to %s: %w"
	errFmtReadResponse       = "failed to read response from %s: %w"
	errFmtServiceNonOKStatus = "service returned non-OK status: %s, body: %s"
	errFmtServiceError       = "service error (%s): %s"
	errFmtMarshalRequest     = "failed to marshal request: %w"
	errFmtDecodeResponse     = "failed to decode response: %w"
	errFmtResponseTooLarge   = "%w: %s sent more than %s"
)

var (
	// ErrEmptyResponse indicates a successful status with no body where audio was expected.
	ErrEmptyResponse = errors.New("received empty response body")
	// ErrResponseTooLarge indicates a response body over maxResponseBytes.
	ErrResponseTooLarge = errors.New("response body exceeds size limit")
)

// StatusError is returned for any non-2xx provider response.
type StatusError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(errFmtServiceNonOKStatus, e.Status, e.Detail)
}

// Is maps throttling responses onto ErrQuotaExceeded.
func (e *StatusError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusTooManyRequests
}

// restClient is the small HTTP helper shared by the REST-based adapters.
type restClient struct {
	httpClient *http.Client
}

type restRequest struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newRESTClient(httpClient *http.Client) *restClient {
	return &restClient{httpClient: httpClient}
}

// send performs the request and returns the body of a 2xx response.
func (c *restClient) send(ctx context.Context, req restRequest) ([]byte, error) {
	var body io.Reader = http.NoBody
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	httpReq.Header.Set(headerUserAgent, userAgent)

	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, httpReq.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseErrorResponse(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf(errFmtReadResponse, httpReq.URL.Host, err)
	}

	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf(errFmtResponseTooLarge, ErrResponseTooLarge, httpReq.URL.Host, humanize.IBytes(maxResponseBytes))
	}

	return data, nil
}

// sendJSON marshals payload, sends it and decodes the JSON response into target.
func (c *restClient) sendJSON(ctx context.Context, req restRequest, payload, target any) error {
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf(errFmtMarshalRequest, err)
		}

		req.body = encoded
	}

	if req.headers == nil {
		req.headers = map[string]string{}
	}

	req.headers[headerAccept] = contentTypeJSON
	if payload != nil {
		req.headers[headerContentType] = contentTypeJSON
	}

	data, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf(errFmtDecodeResponse, err)
	}

	return nil
}

// googleErrorResponse is the error envelope used by Google APIs.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// parseErrorResponse extracts a structured error message when the body carries
// one and falls back to the raw body otherwise.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorDetail))

	var structured googleErrorResponse

	detail := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &structured) == nil && structured.Error.Message != "" {
		detail = fmt.Sprintf(errFmtServiceError, structured.Error.Status, structured.Error.Message)
	}

	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Detail:     detail,
	}
}
