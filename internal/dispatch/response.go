package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Content types written by the engine.
const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeJSON = "application/problem+json"
)

// Format selects how the default path renders an unhandled fault.
type Format string

const (
	FormatAuto Format = "auto"
	FormatHTML Format = "html"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Response is a materialized HTTP response produced by a fault handler or
// the default renderer. It is built in memory and flushed once via Write,
// so a handler that faults midway never leaves a half-written reply.
type Response struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Text builds a plain-text response.
func Text(status int, body string) *Response {
	return &Response{
		StatusCode:  status,
		ContentType: ContentTypeText,
		Body:        []byte(body),
	}
}

// HTML builds an HTML response.
func HTML(status int, body []byte) *Response {
	return &Response{
		StatusCode:  status,
		ContentType: ContentTypeHTML,
		Body:        body,
	}
}

// JSON builds a problem+json response from any marshalable value.
func JSON(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response body: %w", err)
	}
	return &Response{
		StatusCode:  status,
		ContentType: ContentTypeJSON,
		Body:        body,
	}, nil
}

// WithHeader sets a header on the response.
func (resp *Response) WithHeader(key, value string) *Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(key, value)
	return resp
}

// Write flushes the response to w. Headers are written first, then the
// status, then the body.
func (resp *Response) Write(w http.ResponseWriter) error {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(resp.Body)
	return err
}
