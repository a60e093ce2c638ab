package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/erp/backoffice/internal/domain/querycache"
)

// Error codes of failures that never reached a backend error body
const (
	CodeNetwork  = "NETWORK_ERROR"
	CodeUpstream = "UPSTREAM_ERROR"
)

// Envelope is a successful backend response. Data is the response body.
type Envelope struct {
	Status int
	Data   json.RawMessage
}

// Payload returns the body decoded with numbers kept exact. Bodies shaped
// {"success": true, "data": ...} are unwrapped to their data.
func (e *Envelope) Payload() (any, error) {
	if len(bytes.TrimSpace(e.Data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(e.Data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	if obj, ok := v.(map[string]any); ok {
		if _, wrapped := obj["success"].(bool); wrapped {
			if data, ok := obj["data"]; ok {
				if meta, ok := obj["meta"].(map[string]any); ok {
					return paginatedFromMeta(data, meta), nil
				}
				return data, nil
			}
		}
	}
	return v, nil
}

// paginatedFromMeta turns {data: [...], meta: {total, total_pages}} into the
// paginated shape
func paginatedFromMeta(data any, meta map[string]any) any {
	if _, isList := data.([]any); !isList {
		return data
	}
	out := map[string]any{"data": data}
	if total, ok := meta["total"]; ok {
		out["total"] = total
	}
	if pages, ok := meta["total_pages"]; ok {
		out["total_pages"] = pages
	}
	return out
}

// Entry classifies the payload for the query cache
func (e *Envelope) Entry() (querycache.Entry, error) {
	v, err := e.Payload()
	if err != nil {
		return nil, err
	}
	return querycache.Classify(v), nil
}

// Record decodes the payload as one entity
func (e *Envelope) Record() (querycache.Record, error) {
	v, err := e.Payload()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return querycache.RecordFrom(v)
}

// Decode unmarshals the payload into out
func (e *Envelope) Decode(out any) error {
	v, err := e.Payload()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// APIError is a failed backend call normalised to status, code and message
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`

	cause error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap returns the transport error, if any
func (e *APIError) Unwrap() error {
	return e.cause
}

// errorBody covers the error shapes the backend answers with
type errorBody struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Errors  any    `json:"errors"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
}

func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Code: CodeUpstream, Message: http.StatusText(status)}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		if msg := string(bytes.TrimSpace(raw)); msg != "" && len(msg) < 512 {
			apiErr.Message = msg
		}
		return apiErr
	}
	if body.Error != nil {
		if body.Error.Code != "" {
			apiErr.Code = body.Error.Code
		}
		if body.Error.Message != "" {
			apiErr.Message = body.Error.Message
		}
		apiErr.Details = body.Error.Details
		return apiErr
	}
	if body.Code != "" {
		apiErr.Code = body.Code
	}
	if body.Message != "" {
		apiErr.Message = body.Message
	}
	apiErr.Details = body.Errors
	return apiErr
}
