// Package errorpages renders unhandled faults into HTTP responses for the
// dispatch guard's default path. It supports forced html/text/json output
// or auto-negotiation on the request's Accept header.
package errorpages

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"faultgate/internal/dispatch"
	"faultgate/internal/fault"
)

// genericDetail replaces internal messages on 5xx faults outside debug
// mode.
const genericDetail = "An unexpected fault occurred while handling the request"

var pageTemplate = template.Must(template.New("errorpage").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Status}} — {{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 4rem auto; max-width: 40rem; color: #222; }
h1 { font-size: 1.5rem; }
pre { background: #f6f6f6; padding: 1rem; overflow-x: auto; font-size: 0.8rem; }
</style>
</head>
<body>
<h1>{{.Status}} — {{.Title}}</h1>
<p>{{.Detail}}</p>
{{if .Stack}}<pre>{{.Stack}}</pre>{{end}}
</body>
</html>
`))

// problem is the RFC 7807 document written for JSON clients.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Stack  string `json:"stack,omitempty"`
}

// Renderer renders faults. The zero value is not usable; use New.
type Renderer struct{}

// New creates a fault renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render produces a response for the fault in the requested fallback
// format, negotiating on the Accept header when the format is auto. Debug
// mode exposes the fault message and stack regardless of status.
func (rn *Renderer) Render(r *http.Request, f *fault.Fault, debug bool, fallback dispatch.Format) *dispatch.Response {
	format := fallback
	if format == "" || format == dispatch.FormatAuto {
		format = negotiate(r)
	}

	status := f.Status()
	title := http.StatusText(status)
	if title == "" {
		title = "Fault"
	}
	detail := f.Message()
	if status >= http.StatusInternalServerError && !debug {
		detail = genericDetail
	}
	stack := ""
	if debug {
		stack = string(f.Stack())
	}

	switch format {
	case dispatch.FormatJSON:
		return rn.renderJSON(f, status, title, detail, stack)
	case dispatch.FormatHTML:
		return rn.renderHTML(status, title, detail, stack)
	default:
		return rn.renderText(status, title, detail, stack)
	}
}

func (rn *Renderer) renderJSON(f *fault.Fault, status int, title, detail, stack string) *dispatch.Response {
	resp, err := dispatch.JSON(status, problem{
		Type:   "/faults/" + f.Kind().Name(),
		Title:  title,
		Status: status,
		Detail: detail,
		Stack:  stack,
	})
	if err != nil {
		return rn.renderText(status, title, detail, stack)
	}
	return resp
}

func (rn *Renderer) renderHTML(status int, title, detail, stack string) *dispatch.Response {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Status int
		Title  string
		Detail string
		Stack  string
	}{status, title, detail, stack})
	if err != nil {
		return rn.renderText(status, title, detail, stack)
	}
	return dispatch.HTML(status, buf.Bytes())
}

func (rn *Renderer) renderText(status int, title, detail, stack string) *dispatch.Response {
	body := fmt.Sprintf("%d — %s\n%s\n", status, title, detail)
	if stack != "" {
		body += "\n" + stack
	}
	return dispatch.Text(status, body)
}

// negotiate picks a format from the Accept header, first acceptable media
// type wins. No request or no recognizable type yields plain text.
func negotiate(r *http.Request) dispatch.Format {
	if r == nil {
		return dispatch.FormatText
	}
	accept := r.Header.Get("Accept")
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(part)
		if idx := strings.Index(mediaType, ";"); idx >= 0 {
			mediaType = strings.TrimSpace(mediaType[:idx])
		}
		switch mediaType {
		case "application/json", "application/problem+json":
			return dispatch.FormatJSON
		case "text/html", "application/xhtml+xml":
			return dispatch.FormatHTML
		case "text/plain":
			return dispatch.FormatText
		}
	}
	return dispatch.FormatText
}
