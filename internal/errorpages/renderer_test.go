package errorpages

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultgate/internal/dispatch"
	"faultgate/internal/fault"
)

func acceptRequest(accept string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/resource", nil)
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	return r
}

func TestRenderer_ForcedFormats(t *testing.T) {
	rn := New()
	f := fault.New(fault.NotFound, "report missing")

	tests := []struct {
		name            string
		fallback        dispatch.Format
		wantContentType string
		wantInBody      string
	}{
		{"forced json", dispatch.FormatJSON, dispatch.ContentTypeJSON, `"/faults/not_found"`},
		{"forced html", dispatch.FormatHTML, dispatch.ContentTypeHTML, "<h1>404 — Not Found</h1>"},
		{"forced text", dispatch.FormatText, dispatch.ContentTypeText, "404 — Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Accept header prefers HTML; the forced format must win anyway.
			resp := rn.Render(acceptRequest("text/html"), f, false, tt.fallback)

			require.NotNil(t, resp)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, tt.wantContentType, resp.ContentType)
			assert.Contains(t, string(resp.Body), tt.wantInBody)
		})
	}
}

func TestRenderer_AutoNegotiation(t *testing.T) {
	rn := New()
	f := fault.New(fault.Validation, "bad field")

	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{"json accept", "application/json", dispatch.ContentTypeJSON},
		{"problem json accept", "application/problem+json", dispatch.ContentTypeJSON},
		{"html accept", "text/html", dispatch.ContentTypeHTML},
		{"json listed before html wins", "application/json, text/html", dispatch.ContentTypeJSON},
		{"html listed before json wins", "text/html;q=0.9, application/json", dispatch.ContentTypeHTML},
		{"no accept header", "", dispatch.ContentTypeText},
		{"unrecognized types", "image/png, */*", dispatch.ContentTypeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rn.Render(acceptRequest(tt.accept), f, false, dispatch.FormatAuto)
			assert.Equal(t, tt.want, resp.ContentType)
		})
	}
}

func TestRenderer_NilRequestFallsBackToText(t *testing.T) {
	rn := New()
	resp := rn.Render(nil, fault.New(fault.Timeout, "deadline"), false, dispatch.FormatAuto)

	assert.Equal(t, dispatch.ContentTypeText, resp.ContentType)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestRenderer_DebugExposesDetails(t *testing.T) {
	rn := New()
	f := fault.FromPanic("nil deref")
	require.NotEmpty(t, f.Stack())

	resp := rn.Render(acceptRequest("application/json"), f, true, dispatch.FormatAuto)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &doc))
	assert.Equal(t, "panic: nil deref", doc["detail"])
	assert.NotEmpty(t, doc["stack"])
}

func TestRenderer_ProductionHidesServerFaultDetails(t *testing.T) {
	rn := New()
	f := fault.FromPanic("secret internal state")

	tests := []struct {
		name     string
		fallback dispatch.Format
	}{
		{"json", dispatch.FormatJSON},
		{"html", dispatch.FormatHTML},
		{"text", dispatch.FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rn.Render(acceptRequest(""), f, false, tt.fallback)

			body := string(resp.Body)
			assert.NotContains(t, body, "secret internal state")
			assert.NotContains(t, body, "goroutine", "stack must not leak")
			assert.Contains(t, body, genericDetail)
		})
	}
}

func TestRenderer_ClientFaultKeepsMessageInProduction(t *testing.T) {
	rn := New()
	f := fault.New(fault.Validation, "email is required")

	resp := rn.Render(acceptRequest("application/json"), f, false, dispatch.FormatAuto)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &doc))
	assert.Equal(t, "email is required", doc["detail"])
	assert.Equal(t, float64(http.StatusBadRequest), doc["status"])
}
