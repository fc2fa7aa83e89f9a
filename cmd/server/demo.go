package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"faultgate/internal/app"
	"faultgate/internal/dispatch"
	"faultgate/internal/fault"
	"faultgate/internal/middleware"
)

// registerHandlers installs the demo handler set: JSON problems for
// validation faults everywhere, an HTML override under the demo scope,
// and a catch-all for rate limiting.
func registerHandlers(application *app.Application) {
	reg := application.Registry

	reg.AddNamed("validationProblem", fault.Validation,
		func(r *http.Request, f *fault.Fault) (*dispatch.Response, error) {
			return dispatch.JSON(f.Status(), map[string]any{
				"error":  f.Message(),
				"kind":   f.Kind().Name(),
				"status": f.Status(),
			})
		})

	reg.AddNamed("demoValidationPage", fault.Validation,
		func(r *http.Request, f *fault.Fault) (*dispatch.Response, error) {
			body := "<h1>Invalid input</h1><p>" + f.Message() + "</p>"
			return dispatch.HTML(f.Status(), []byte(body)), nil
		}, "/demo/form")

	reg.AddNamed("retryAdvice", fault.RateLimit,
		func(r *http.Request, f *fault.Fault) (*dispatch.Response, error) {
			resp := dispatch.Text(f.Status(), "too many requests, slow down\n")
			return resp.WithHeader("Retry-After", "60"), nil
		})
}

// addDemoRoutes mounts routes that raise representative faults so the
// dispatch engine can be exercised end to end.
func addDemoRoutes(r chi.Router, application *app.Application) chi.Router {
	guard := application.Guard
	logger := application.Logger

	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("demo panic: simulated crash")
	})

	r.Get("/missing/{id}", middleware.Handle(guard, logger,
		func(w http.ResponseWriter, r *http.Request) error {
			id := chi.URLParam(r, "id")
			return fault.Newf(fault.NotFound, "item %s does not exist", id)
		}))

	r.Get("/form", middleware.Handle(guard, logger,
		func(w http.ResponseWriter, r *http.Request) error {
			age := r.URL.Query().Get("age")
			if _, err := strconv.Atoi(age); err != nil {
				return fault.Wrap(fault.Validation, "age must be a number", err)
			}
			render.JSON(w, r, map[string]string{"age": age})
			return nil
		}))

	r.Get("/slow", middleware.Handle(guard, logger,
		func(w http.ResponseWriter, r *http.Request) error {
			select {
			case <-r.Context().Done():
				return r.Context().Err()
			case <-time.After(30 * time.Second):
				render.JSON(w, r, map[string]string{"status": "done"})
				return nil
			}
		}))

	r.Get("/quiet", middleware.Handle(guard, logger,
		func(w http.ResponseWriter, r *http.Request) error {
			return fault.New(fault.Unauthorized, "token expired").WithQuiet()
		}))

	return r
}
