// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"

	"github.com/z5labs/autotel"
	"github.com/z5labs/autotel/config"
	"github.com/z5labs/autotel/lifecycle"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{AddSource: true})
	logger := slog.New(logHandler)

	lc := new(lifecycle.Context)
	ctx := lifecycle.NewContext(context.Background(), lc)

	err := run(ctx, logHandler)
	if err != nil {
		logger.Error("failed while running", slog.String("error", err.Error()))
	}

	// The assembled providers registered their shutdown here so exit
	// time cleanup stays on the application's own way out.
	err = lc.PostRun().Run(context.Background())
	if err != nil {
		logger.Error("failed while shutting down", slog.String("error", err.Error()))
	}
}

func run(ctx context.Context, logHandler slog.Handler) error {
	logger := slog.New(logHandler)

	sdk, err := autotel.NewBuilder().
		AddPropertySource(config.Map{
			"otel.service.name":    "example",
			"otel.traces.exporter": "otlp,logging",
		}).
		AddSamplerCustomizer(func(s sdktrace.Sampler, props *config.Properties) (sdktrace.Sampler, error) {
			if ratio, err := props.Float64Or("example.sample.ratio", 1.0); err == nil && ratio < 1.0 {
				return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)), nil
			}
			return s, nil
		}).
		LogHandler(logHandler).
		SetAsGlobal(true).
		Build(ctx)
	if err != nil {
		return err
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		spanCtx, span := otel.Tracer("main").Start(r.Context(), "handler")
		defer span.End()

		n := rand.Int()
		enc := json.NewEncoder(w)
		err := enc.Encode(struct{ N int }{N: n})
		if err != nil {
			logger.ErrorContext(spanCtx, "failed to encode response", slog.String("error", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})

	logger.InfoContext(ctx, "serving", slog.String("addr", ":8080"), slog.String("service", sdk.Resource().String()))
	return http.ListenAndServe(":8080", nil)
}
