package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	appctx "shopmirror/internal/core/context"
)

var restTracer = otel.Tracer("shopmirror/platform/rest")

const (
	headerCallLimit  = "X-Api-Call-Limit" // "32/40"
	headerRetryAfter = "Retry-After"
	headerRequestID  = "X-Request-ID"
)

var nextLinkRE = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// RestConfig configures the resource-oriented client.
type RestConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// RestClient talks to the platform's resource-oriented HTTP API
// (path + verb + body).
type RestClient struct {
	cfg     RestConfig
	http    *http.Client
	limiter *Limiter
}

// NewRestClient creates the resource API client.
func NewRestClient(cfg RestConfig, limiter *Limiter) *RestClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RestClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// Protocol implements Client.
func (c *RestClient) Protocol() Protocol {
	return ProtocolRest
}

// Execute implements Client. Every failure is mapped into the RemoteError
// taxonomy; timeouts count as Network (retryable, bounded).
func (c *RestClient) Execute(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := restTracer.Start(ctx, "rest.execute")
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
	)
	defer span.End()

	u, err := url.Parse(c.cfg.BaseURL + req.Path)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("build url: %w", err))
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, NewNetworkError(fmt.Errorf("marshal body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, NewNetworkError(err)
	}

	requestID := appctx.GetRequestID(ctx)
	if requestID == "" {
		requestID = appctx.GetTraceID(ctx)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	httpReq.Header.Set(headerRequestID, requestID)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures are both transport failures.
		return nil, NewNetworkError(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("read body: %w", err))
	}

	c.observeRateHeaders(httpResp.Header)

	if rerr := c.mapStatus(httpResp.StatusCode, httpResp.Header, respBody); rerr != nil {
		return nil, rerr
	}

	return &Response{
		Status:     httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
		RequestID:  requestID,
		NextCursor: nextCursorFromLink(httpResp.Header.Get("Link")),
	}, nil
}

const maxResponseBytes = 4 << 20

// observeRateHeaders feeds the shared budget from "used/limit" call headers.
func (c *RestClient) observeRateHeaders(h http.Header) {
	raw := h.Get(headerCallLimit)
	used, limit, ok := strings.Cut(raw, "/")
	if !ok {
		return
	}
	u, err1 := strconv.ParseInt(strings.TrimSpace(used), 10, 64)
	l, err2 := strconv.ParseInt(strings.TrimSpace(limit), 10, 64)
	if err1 != nil || err2 != nil {
		return
	}
	c.limiter.Observe(ProtocolRest, u, l)
}

func (c *RestClient) mapStatus(status int, h http.Header, body []byte) *RemoteError {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAuthError(fmt.Sprintf("credentials rejected (%d)", status))
	case status == http.StatusTooManyRequests:
		return NewRateLimitedError(parseRetryAfter(h.Get(headerRetryAfter)))
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return NewValidationError("platform rejected the payload", parseFieldErrors(body))
	case status >= 500:
		return NewServerError(status, truncate(string(body), 200))
	default:
		return NewValidationError(fmt.Sprintf("unexpected status %d", status), nil)
	}
}

// parseFieldErrors decodes the resource API's error envelope:
//
//	{"errors": {"province": ["is not valid"], ...}}
func parseFieldErrors(body []byte) map[string]string {
	var envelope struct {
		Errors map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return nil
	}
	fields := make(map[string]string, len(envelope.Errors))
	for field, raw := range envelope.Errors {
		var msgs []string
		if err := json.Unmarshal(raw, &msgs); err == nil && len(msgs) > 0 {
			fields[field] = msgs[0]
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			fields[field] = msg
		}
	}
	return fields
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

// nextCursorFromLink extracts the page_info cursor from a Link header's
// rel="next" entry.
func nextCursorFromLink(link string) string {
	m := nextLinkRE.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	u, err := url.Parse(m[1])
	if err != nil {
		return ""
	}
	return u.Query().Get("page_info")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
