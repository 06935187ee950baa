// Package provider is the single call-with-timeout path used for every
// external HTTP collaborator of the bridge: AI chat, transcription, speech
// synthesis, media generation and the audit webhook.
//
// A call never panics or leaks a transport error past this package. Every
// failure comes back as a *Failure carrying one of three kinds:
//
//   - timeout:            the call did not finish within its deadline
//   - http_error:         the collaborator answered with a non-2xx status
//     (or could not be reached, with Status 0)
//   - malformed_response: a 2xx body that cannot be decoded or lacks a field
//
// Retry and fallback are decided by callers, never by the gateway.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// FailureKind classifies a failed provider call for fallback decisions.
type FailureKind int

const (
	FailureTimeout   FailureKind = iota // deadline exceeded
	FailureHTTP                         // non-2xx status or unreachable host
	FailureMalformed                    // 2xx with an unusable body
)

// String returns the wire label of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureHTTP:
		return "http_error"
	case FailureMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Failure is the typed failure value returned by Gateway.Call.
type Failure struct {
	Kind FailureKind

	// Status is the HTTP status for FailureHTTP (0 when unreachable).
	Status int

	// Detail is a short human-readable description.
	Detail string

	// Body holds up to maxErrorBody bytes of a non-2xx response so callers
	// can inspect in-band signals (e.g. a fallback hint).
	Body []byte
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureHTTP:
		if f.Status > 0 {
			return fmt.Sprintf("http_error %d: %s", f.Status, f.Detail)
		}
		return "http_error: " + f.Detail
	default:
		return f.Kind.String() + ": " + f.Detail
	}
}

// AsFailure extracts a *Failure from err, if present.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Malformed builds a FailureMalformed for callers that reject a decoded body.
func Malformed(format string, args ...any) *Failure {
	return &Failure{Kind: FailureMalformed, Detail: fmt.Sprintf(format, args...)}
}

const (
	// maxErrorBody bounds how much of an error response is retained.
	maxErrorBody = 4096

	// maxResponseBody is the default bound on successful response bodies
	// (generated audio and media can be large).
	maxResponseBody = 64 << 20
)

// Request describes one external call.
type Request struct {
	// Name labels the collaborator in logs (e.g. "chat", "tts-primary").
	Name string

	Method string
	URL    string
	Header http.Header

	// Body and ContentType are sent as-is.
	Body        []byte
	ContentType string

	// Timeout bounds the whole call including reading the body.
	Timeout time.Duration
}

// NewJSONRequest builds a POST request with a JSON-encoded payload.
func NewJSONRequest(name, url string, payload any, timeout time.Duration) (*Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return &Request{
		Name:        name,
		Method:      http.MethodPost,
		URL:         url,
		Header:      make(http.Header),
		Body:        body,
		ContentType: "application/json",
		Timeout:     timeout,
	}, nil
}

// FilePart is the file section of a multipart upload.
type FilePart struct {
	Field    string
	Filename string
	Data     []byte
}

// NewMultipartRequest builds a POST multipart/form-data request with one
// file part and optional string fields.
func NewMultipartRequest(name, url string, file FilePart, fields map[string]string, timeout time.Duration) (*Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(file.Field, file.Filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("writing file data: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	return &Request{
		Name:        name,
		Method:      http.MethodPost,
		URL:         url,
		Header:      make(http.Header),
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
		Timeout:     timeout,
	}, nil
}

// Response is a successful (2xx) provider answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// DecodeJSON unmarshals the body into v, reporting malformed_response on error.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Failure{Kind: FailureMalformed, Detail: fmt.Sprintf("decoding body: %v", err)}
	}
	return nil
}

// Config holds gateway-wide settings.
type Config struct {
	// DefaultTimeout applies to requests that leave Timeout unset.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent"`

	// MaxResponseBytes rejects larger 2xx bodies as malformed.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

// Gateway performs provider calls.
type Gateway struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the underlying HTTP client (tests, proxies).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// New creates a Gateway.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wabridge/1.0"
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = maxResponseBody
	}
	g := &Gateway{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With("component", "provider"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Call performs req and returns either a 2xx Response or a *Failure.
// The deadline is enforced through the request context, so a timed-out
// call is abandoned and the caller proceeds immediately.
func (g *Gateway) Call(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, &Failure{Kind: FailureHTTP, Detail: fmt.Sprintf("building request: %v", err)}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("User-Agent", g.cfg.UserAgent)

	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		f := g.transportFailure(ctx, err)
		g.logger.Debug("provider call failed",
			"provider", req.Name, "request_id", requestID,
			"kind", f.Kind.String(), "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, f
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		g.logger.Debug("provider returned error status",
			"provider", req.Name, "request_id", requestID,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, &Failure{
			Kind:   FailureHTTP,
			Status: resp.StatusCode,
			Detail: truncate(string(errBody), 200),
			Body:   errBody,
		}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, g.transportFailure(ctx, err)
	}
	if int64(len(respBody)) > g.cfg.MaxResponseBytes {
		g.logger.Warn("provider response too large",
			"provider", req.Name, "request_id", requestID,
			"limit", g.cfg.MaxResponseBytes)
		return nil, &Failure{
			Kind:   FailureMalformed,
			Status: resp.StatusCode,
			Detail: fmt.Sprintf("response body exceeds %d bytes", g.cfg.MaxResponseBytes),
		}
	}

	g.logger.Debug("provider call done",
		"provider", req.Name, "request_id", requestID,
		"status", resp.StatusCode, "bytes", len(respBody),
		"duration_ms", time.Since(start).Milliseconds())

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// CallJSON posts payload as JSON and decodes a 2xx body into out.
func (g *Gateway) CallJSON(ctx context.Context, name, url string, payload, out any, timeout time.Duration, header http.Header) error {
	req, err := NewJSONRequest(name, url, payload, timeout)
	if err != nil {
		return &Failure{Kind: FailureHTTP, Detail: err.Error()}
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	resp, err := g.Call(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(out)
}

// transportFailure maps a client error into timeout or unreachable.
func (g *Gateway) transportFailure(ctx context.Context, err error) *Failure {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Detail: "request timed out"}
	}
	return &Failure{Kind: FailureHTTP, Detail: err.Error()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
