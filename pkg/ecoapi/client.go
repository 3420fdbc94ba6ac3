// Package ecoapi provides a client for the remote EcoAdvisor API: document upload,
// knowledge-base processing, assistant chat and conversation history.
package ecoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ecoadvisor-go/internal/config"
	"ecoadvisor-go/pkg/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 10 * time.Second
	// UserIDHeader carries the fixed caller identity.
	UserIDHeader = "X-User-ID"
)

// Client talks to the remote API. It is safe for concurrent use.
type Client struct {
	baseURL         string
	userID          string
	knowledgeBaseID string
	client          *http.Client
	tracer          trace.Tracer
}

// NewClient creates a new client from the remote API configuration.
func NewClient(cfg config.RemoteAPIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		userID:          cfg.UserID,
		knowledgeBaseID: cfg.KnowledgeBaseID,
		client:          &http.Client{Timeout: timeout},
		tracer:          otel.Tracer("ecoadvisor-go/pkg/ecoapi"),
	}
}

// do sends one request and returns the unwrapped payload.
// op is the stable, human-readable name used in error messages.
func (c *Client) do(ctx context.Context, op, method, path string, in interface{}) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	payload, err := c.roundTrip(ctx, op, method, path, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorw("[EcoAPI] 调用远端接口失败", "op", op, "method", method, "path", path, "error", err, "cause", unwrapCause(err))
		return nil, err
	}
	return payload, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in interface{}) ([]byte, error) {
	var body io.Reader
	if in != nil {
		reqBytes, err := json.Marshal(in)
		if err != nil {
			return nil, newError(KindValidation, op, 0, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(reqBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, newError(KindValidation, op, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserIDHeader, c.userID)

	resp, err := c.client.Do(req)
	if err != nil {
		// 超时、连接失败、取消都归为网络错误
		return nil, newError(KindNetwork, op, 0, err)
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindNetwork, op, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cause := fmt.Errorf("remote api returned %s: %s", resp.Status, strings.TrimSpace(string(respBytes)))
		return nil, newError(kindForStatus(resp.StatusCode), op, resp.StatusCode, cause)
	}

	data, err := unwrapEnvelope(respBytes)
	if err != nil {
		if envErr, ok := asEnvelopeError(err); ok {
			return nil, newError(kindForStatus(envErr.status), op, envErr.status, envErr)
		}
		return nil, newError(KindParse, op, resp.StatusCode, err)
	}
	return data, nil
}

// decode unmarshals a payload, mapping failures to KindParse.
func decode(op string, data []byte, out interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return newError(KindParse, op, 0, fmt.Errorf("empty payload"))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newError(KindParse, op, 0, err)
	}
	return nil
}

func unwrapCause(err error) error {
	if apiErr, ok := err.(*Error); ok && apiErr.Err != nil {
		return apiErr.Err
	}
	return err
}
