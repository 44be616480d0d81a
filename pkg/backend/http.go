package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPInvoker calls models through an HTTP gateway. One endpoint per
// model: POST {baseURL}/v1/models/{modelID}/invoke.
type HTTPInvoker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPInvoker creates an invoker against the given gateway base URL.
// The per-call timeout comes from the routing decision, so the shared
// client carries none.
func NewHTTPInvoker(baseURL string) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// errorBody is the gateway's failure payload. The kind field carries the
// failure classification; partial carries salvaged output on timeouts.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Partial string `json:"partial,omitempty"`
}

// Call performs one model invocation.
func (i *HTTPInvoker) Call(ctx context.Context, modelID string, req Request, timeout time.Duration) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, NewError(KindValidation, modelID, fmt.Errorf("failed to encode request: %w", err))
	}

	url := fmt.Sprintf("%s/v1/models/%s/invoke", i.baseURL, modelID)

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(KindValidation, modelID, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", req.RequestID)

	resp, err := i.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewError(KindTimeout, modelID, err)
		}

		return nil, NewError(KindTransient, modelID, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindTransient, modelID, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, i.classifyFailure(modelID, resp.StatusCode, body)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, NewError(KindModelError, modelID, fmt.Errorf("failed to decode response: %w", err))
	}

	return &response, nil
}

// classifyFailure maps a gateway failure to the typed taxonomy. The
// gateway's own kind field wins; the status code is the fallback.
func (i *HTTPInvoker) classifyFailure(modelID string, statusCode int, body []byte) error {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Kind != "" {
		backendErr := NewError(Kind(parsed.Kind), modelID, errors.New(parsed.Message))
		backendErr.Partial = parsed.Partial

		return backendErr
	}

	err := fmt.Errorf("gateway returned status %d", statusCode)

	switch {
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return NewError(KindTimeout, modelID, err)
	case statusCode == http.StatusTooManyRequests:
		return NewError(KindTransient, modelID, err)
	case statusCode == http.StatusBadRequest:
		return NewError(KindValidation, modelID, err)
	case statusCode == http.StatusUnprocessableEntity:
		return NewError(KindContent, modelID, err)
	case statusCode >= 500:
		return NewError(KindModelError, modelID, err)
	default:
		return NewError(KindUnknown, modelID, err)
	}
}
