package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/armis/armis/pkg/api/rest"
	"github.com/armis/armis/pkg/types"
)

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 1 << 20

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch types.KindOf(err) {
	case types.KindUnauthorized:
		return http.StatusUnauthorized
	case types.KindForbidden, types.KindPermission:
		return http.StatusForbidden
	case types.KindValidation, types.KindInvalidAction, types.KindRegistry:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case types.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type successEnvelope struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeSuccess(w http.ResponseWriter, data any, message string) {
	rest.WriteJSON(w, http.StatusOK, successEnvelope{
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		Message:   message,
	})
}

// writeError writes the error envelope. Errors without a kind are reported
// as InternalError with a generic message. Server-side failures that wrap a
// cause keep it out of the response; the dispatcher logs the full error.
func writeError(w http.ResponseWriter, err error) {
	env := errorEnvelope{Error: "InternalError", Message: internalMessage}
	status := statusFor(err)
	var e *types.Error
	if errors.As(err, &e) {
		env.Error = string(e.Kind)
		env.Field = e.Field
		env.Message = err.Error()
		if status >= http.StatusInternalServerError {
			env.Message = publicMessage(e)
		}
	}
	rest.WriteJSON(w, status, env)
}

const (
	internalMessage    = "internal server error"
	unavailableMessage = "configuration is unavailable"
)

// publicMessage is the client-facing text of a 5xx error. Only messages
// built without an underlying cause are passed through.
func publicMessage(e *types.Error) string {
	switch {
	case e.Err == nil && e.Message != "":
		return e.Message
	case e.Kind == types.KindConfig:
		return unavailableMessage
	default:
		return internalMessage
	}
}

// params merges query, form and JSON body values of one request.
type params struct {
	query url.Values
	form  url.Values
	body  map[string]any
}

func parseParams(w http.ResponseWriter, r *http.Request) (*params, error) {
	p := &params{query: r.URL.Query()}
	if r.Method != http.MethodPost {
		return p, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, types.NewValidationError("body", "failed to read request body: %v", err)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return p, nil
		}
		if err := json.Unmarshal(data, &p.body); err != nil {
			return nil, types.NewValidationError("body", "request body is not a JSON object: %v", err)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, types.NewValidationError("body", "invalid form body: %v", err)
		}
		p.form = r.PostForm
	default:
		if err := r.ParseForm(); err != nil {
			return nil, types.NewValidationError("body", "invalid form body: %v", err)
		}
		p.form = r.PostForm
	}
	return p, nil
}

// raw returns the value of key, preferring the body over the query string.
func (p *params) raw(key string) (any, bool) {
	if v, ok := p.body[key]; ok {
		return v, true
	}
	if p.form != nil && p.form.Has(key) {
		return p.form.Get(key), true
	}
	if p.query.Has(key) {
		return p.query.Get(key), true
	}
	return nil, false
}

// str returns key as a trimmed string.
func (p *params) str(key string) string {
	v, ok := p.raw(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (p *params) boolean(key string) bool {
	b, _ := strconv.ParseBool(p.str(key))
	return b
}

// object returns key as a JSON object. Form values carry it JSON-encoded.
func (p *params) object(key string) (map[string]any, error) {
	v, ok := p.raw(key)
	if !ok || v == nil || v == "" {
		return nil, types.NewMissingFieldError(key)
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(t), &out); err != nil || out == nil {
			return nil, types.NewValidationError(key, "%s must be a JSON object", key)
		}
		return out, nil
	default:
		return nil, types.NewValidationError(key, "%s must be a JSON object", key)
	}
}

// rawJSON returns key re-encoded as JSON bytes.
func (p *params) rawJSON(key string) ([]byte, error) {
	v, ok := p.raw(key)
	if !ok || v == nil || v == "" {
		return nil, types.NewMissingFieldError(key)
	}
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(v)
}

// etag quotes a revision for the ETag header.
func etag(rev string) string {
	return `"` + rev + `"`
}

// revisionFromETag strips the weak prefix and quotes of an If-Match value.
func revisionFromETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}
