package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DanielWarg/copy-paste/pkg/requestid"
)

const defaultRequestTimeout = 30 * time.Second

// Transport issues one correlated HTTP call per invocation and returns either
// the raw response payload or a classified error. It never returns a Go error
// for HTTP 4xx/5xx; those are folded into the same *Error shape as transport
// failures so callers have one failure path.
type Transport struct {
	base       string
	httpClient *http.Client
	timeout    time.Duration
}

// Response is a successful call result.
type Response struct {
	Body      []byte
	RequestID string
	Status    int
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// NewTransport builds a transport for the given base URL using the shared
// HTTP client settings.
func NewTransport(config *Config) *Transport {
	timeout := config.RequestTimeout()
	return &Transport{
		base:       strings.TrimRight(config.Service.Server, "/"),
		httpClient: newHTTPClient(),
		timeout:    timeout,
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     false,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// DoJSON issues a call with a JSON-serialized body (nil for none).
func (t *Transport) DoJSON(ctx context.Context, method, path string, payload any) (*Response, *Error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Code: CodeUnknown, Message: userMessage(CodeUnknown, err.Error())}
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return t.do(ctx, method, path, body, contentType)
}

// DoMultipart issues a call carrying one file part named "file".
func (t *Transport) DoMultipart(ctx context.Context, method, path, filename string, data []byte) (*Response, *Error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, &Error{Code: CodeUnknown, Message: userMessage(CodeUnknown, err.Error())}
	}
	if _, err := part.Write(data); err != nil {
		return nil, &Error{Code: CodeUnknown, Message: userMessage(CodeUnknown, err.Error())}
	}
	if err := w.Close(); err != nil {
		return nil, &Error{Code: CodeUnknown, Message: userMessage(CodeUnknown, err.Error())}
	}
	return t.do(ctx, method, path, &buf, w.FormDataContentType())
}

func (t *Transport) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*Response, *Error) {
	reqID := requestid.FromContextOrNew(ctx)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return nil, t.fail(&Error{Code: CodeUnknown, Message: userMessage(CodeUnknown, err.Error()), RequestID: reqID})
	}
	req.Header.Set(middleware.RequestIDHeader, reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, t.fail(NewTimeoutError(reqID))
		}
		apiErr := Classify(0, err, nil)
		apiErr.RequestID = reqID
		return nil, t.fail(apiErr)
	}
	defer resp.Body.Close()

	// The backend echoes the correlation header; surface whichever id is
	// available so a human can match client and backend logs.
	if echoed := resp.Header.Get(middleware.RequestIDHeader); echoed != "" {
		reqID = echoed
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.fail(&Error{Code: CodeNetworkError, Message: userMessage(CodeNetworkError, ""), RequestID: reqID, TransportLevel: true})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed *errorBody
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			parsed = &errorBody{}
			if err := json.Unmarshal(raw, parsed); err != nil {
				parsed = nil
			}
		}
		apiErr := Classify(resp.StatusCode, nil, parsed)
		apiErr.RequestID = reqID
		return nil, t.fail(apiErr)
	}

	return &Response{Body: raw, RequestID: reqID, Status: resp.StatusCode}, nil
}

// fail logs the failure. Only the code and request id are logged; payloads,
// headers and bodies never reach operational logs.
func (t *Transport) fail(apiErr *Error) *Error {
	zap.S().Named("api").Warnf("request failed code=%s request_id=%s", apiErr.Code, apiErr.RequestID)
	return apiErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
