package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/logging"
)

// maxBodyBytes caps request bodies. Entries are the largest payload.
const maxBodyBytes = 1 << 20

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorBody(code, message string, status int) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"status":  status,
		},
	}
}

// renderError maps err to its status code and writes the error envelope.
// Causes are logged, never sent.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	aErr, ok := errors.As(err)
	if !ok {
		aErr = errors.NewInternal(err)
	}

	logger := logging.Component("web")
	if aErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", aErr.Code, "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", aErr.Code, "error", aErr.Message)
	}

	body := errorBody(string(aErr.Code), aErr.Message, aErr.Status)
	if len(aErr.Details) > 0 {
		body["error"].(map[string]any)["details"] = aErr.Details
	}
	renderJSON(w, aErr.Status, body)
}

// decodeJSON reads a JSON request body into v. Unknown fields are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("%s must be a positive integer", name))
	}
	return id, nil
}

// parseIntParam reads an integer query parameter, falling back to def.
func parseIntParam(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
