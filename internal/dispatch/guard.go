package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"faultgate/internal/fault"
)

// containedBody is what clients see when a fault handler itself fails
// outside debug mode.
const containedBody = "An error occurred while handling an error"

// Renderer turns an unhandled fault into a response on the guard's
// default path. The debug flag controls whether internal details such as
// stack traces are exposed.
type Renderer interface {
	Render(r *http.Request, f *fault.Fault, debug bool, fallback Format) *Response
}

// Event describes a dispatched fault for observers such as the fault
// feed. Observers are invoked synchronously after the response is built
// and must not block.
type Event struct {
	Kind      string    `json:"kind"`
	Status    int       `json:"status"`
	Scope     string    `json:"scope,omitempty"`
	URL       string    `json:"url"`
	Handler   string    `json:"handler,omitempty"`
	Secondary bool      `json:"secondary"`
	TraceID   string    `json:"trace_id,omitempty"`
	Time      time.Time `json:"time"`
}

// Observer receives fault events after dispatch.
type Observer func(Event)

// GuardConfig holds the guard's behavior switches.
type GuardConfig struct {
	// Debug exposes handler names, URLs and stack traces in responses.
	Debug bool
	// Fallback selects the default-path render format; FormatAuto
	// negotiates on the Accept header.
	Fallback Format
	// NoisyFaults forces logging of quiet faults on the default path.
	NoisyFaults bool
}

// Guard is the terminal fault boundary of the request pipeline. It
// resolves a handler for each fault, invokes it, and contains any
// secondary fault so that a response is always produced.
type Guard struct {
	registry *Registry
	renderer Renderer
	logger   *slog.Logger
	metrics  *Metrics

	debug     bool
	fallback  Format
	noisy     bool
	observers []Observer
}

// NewGuard creates a dispatch guard over the given registry and renderer.
func NewGuard(registry *Registry, renderer Renderer, logger *slog.Logger, cfg GuardConfig) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	fallback := cfg.Fallback
	if fallback == "" {
		fallback = FormatAuto
	}
	return &Guard{
		registry: registry,
		renderer: renderer,
		logger:   logger.With(slog.String("component", "dispatch.guard")),
		debug:    cfg.Debug,
		fallback: fallback,
		noisy:    cfg.NoisyFaults,
	}
}

// SetMetrics attaches dispatch metrics. Safe to leave unset in tests.
func (g *Guard) SetMetrics(m *Metrics) {
	g.metrics = m
}

// AddObserver registers an observer for dispatched faults. Must be called
// during setup, before serving begins.
func (g *Guard) AddObserver(obs Observer) {
	g.observers = append(g.observers, obs)
}

// Registry returns the guard's handler registry.
func (g *Guard) Registry() *Registry {
	return g.registry
}

// Respond is the single runtime entry point: it resolves and invokes the
// best-matching handler for the fault and always returns a response. It
// never panics and never returns nil.
func (g *Guard) Respond(r *http.Request, f *fault.Fault) *Response {
	ctx := requestContext(r)
	scope := RouteScope(r)
	entry := g.registry.Resolve(f, scope)

	g.recordSpan(ctx, f)

	outcome := "handler"
	resp, err := g.invoke(entry, r, f)
	if err == nil && resp == nil {
		outcome = "default"
		resp, err = g.runDefault(r, f)
	}
	if err != nil {
		outcome = "contained"
		resp = g.contain(ctx, entry, r, err)
	}

	if g.metrics != nil {
		g.metrics.RecordDispatch(ctx, f.Kind().Name(), outcome)
	}
	g.notify(Event{
		Kind:      f.Kind().Name(),
		Status:    resp.StatusCode,
		Scope:     scope,
		URL:       requestURL(r),
		Handler:   entryName(entry),
		Secondary: outcome == "contained",
		TraceID:   traceIDFromContext(ctx),
		Time:      time.Now().UTC(),
	})
	return resp
}

// invoke runs the resolved handler, converting a panic into an error so
// the containment path sees a single failure shape. A nil entry is the
// no-handler outcome, not an error.
func (g *Guard) invoke(entry *Entry, r *http.Request, f *fault.Fault) (resp *Response, err error) {
	if entry == nil {
		return nil, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return entry.Handler(r, f)
}

// runDefault logs the fault per policy and renders it with the configured
// renderer. The default path is contained like any handler: a faulty
// renderer must not take the request down.
func (g *Guard) runDefault(r *http.Request, f *fault.Fault) (resp *Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	g.logFault(r, f)
	resp = g.renderer.Render(r, f, g.debug, g.fallback)
	if resp == nil {
		return nil, fmt.Errorf("renderer returned no response")
	}
	return resp, nil
}

// contain handles a secondary fault: the resolved handler (or the default
// renderer) failed while responding to the original fault. The response
// is synthesized locally, never through resolution again.
func (g *Guard) contain(ctx context.Context, entry *Entry, r *http.Request, err error) *Response {
	name := entryName(entry)
	if name == "" {
		name = "default"
	}
	url := requestURL(r)

	g.logger.ErrorContext(ctx, "fault raised in fault handler",
		slog.String("handler", name),
		slog.String("url", url),
		slog.String("error", err.Error()),
	)
	if g.metrics != nil {
		g.metrics.RecordSecondaryFault(ctx, name)
	}

	if g.debug {
		return Text(http.StatusInternalServerError,
			fmt.Sprintf("Fault raised in fault handler %q for url: %s", name, url))
	}
	return Text(http.StatusInternalServerError, containedBody)
}

// logFault applies the default-path logging policy: log unless the fault
// is quiet, unless noisy faults are forced.
func (g *Guard) logFault(r *http.Request, f *fault.Fault) {
	if f.Quiet() && !g.noisy {
		return
	}
	g.logger.ErrorContext(requestContext(r), "fault occurred while handling request",
		slog.String("url", requestURL(r)),
		slog.String("kind", f.Kind().Name()),
		slog.Int("status", f.Status()),
		slog.String("error", f.Error()),
	)
}

func (g *Guard) notify(ev Event) {
	for _, obs := range g.observers {
		obs(ev)
	}
}

// recordSpan marks the active request span with the fault.
func (g *Guard) recordSpan(ctx context.Context, f *fault.Fault) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}
	span.RecordError(f)
	if f.Status() >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, f.Kind().Name())
	}
}

type scopeContextKey struct{}

// WithRouteScope overrides the route scope carried by a request context.
// The pipeline uses it for faults raised before routing completes.
func WithRouteScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// RouteScope determines the route scope of a request: an explicit
// override wins, then the chi route pattern, then "" when the request is
// unavailable or routing never ran.
func RouteScope(r *http.Request) string {
	if r == nil {
		return ""
	}
	ctx := r.Context()
	if scope, ok := ctx.Value(scopeContextKey{}).(string); ok {
		return scope
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// requestURL returns the best-effort URL string for logging, substituting
// "unknown" when the request or its URL is absent.
func requestURL(r *http.Request) string {
	if r == nil || r.URL == nil {
		return "unknown"
	}
	return r.URL.String()
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}

func entryName(entry *Entry) string {
	if entry == nil {
		return ""
	}
	return entry.Name
}

// traceIDFromContext pulls the otel trace ID for feed events. Falls back
// to empty when no span is active.
func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
