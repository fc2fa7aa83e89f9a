package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"faultgate/internal/dispatch"
	"faultgate/internal/fault"
)

// Responder answers a request that raised a fault. Satisfied by
// *dispatch.Guard.
type Responder interface {
	Respond(r *http.Request, f *fault.Fault) *dispatch.Response
}

// HandlerFunc is an HTTP handler that surfaces failures as errors
// instead of writing error responses itself.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// FaultBoundary converts panics in downstream handlers into faults and
// answers them through the guard. It should sit early in the chain so
// every route is covered.
func FaultBoundary(guard Responder, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					// net/http uses this sentinel to drop the connection;
					// pass it along untouched.
					if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
						panic(rec)
					}
					writeResponse(w, r, guard.Respond(r, fault.FromPanic(rec)), logger)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Handle adapts an error-returning handler: a returned error is converted
// to a fault and answered through the guard. Context cancellation maps to
// a timeout fault so deadline expiry gets the right status.
func Handle(guard Responder, logger *slog.Logger, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		f := faultFromHandlerError(r.Context(), err)
		writeResponse(w, r, guard.Respond(r, f), logger)
	}
}

func faultFromHandlerError(ctx context.Context, err error) *fault.Fault {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fault.Wrap(fault.Timeout, "request deadline exceeded", err)
	}
	return fault.From(err)
}
