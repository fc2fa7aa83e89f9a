package main

import (
	"context"
	"log/slog"
	"os"

	"faultgate/internal/app"

	"github.com/go-chi/chi/v5"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registerHandlers(application)
	application.Mount("/demo", demoRoutes(application))

	if err := application.Run(context.Background()); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func demoRoutes(application *app.Application) chi.Router {
	r := chi.NewRouter()
	return addDemoRoutes(r, application)
}
