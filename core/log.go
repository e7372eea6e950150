package core

import (
	"context"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewLogger returns a stderr logger at the given verbosity and installs it as
// the span logger.
func NewLogger(name string, verbosity int) logr.Logger {
	stdr.SetVerbosity(verbosity)
	l := stdr.NewWithOptions(log.New(os.Stderr, "", log.LstdFlags), stdr.Options{LogCaller: stdr.Error}).WithName(name)
	SetLogger(l)
	return l
}

// InstallStdoutTracer exports every span as pretty-printed JSON on stdout. The
// returned function flushes and unregisters the provider.
func InstallStdoutTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
