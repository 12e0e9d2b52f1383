package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY:
//
// Span attributes feed metrics, so they must come from small closed sets.
//
// AVOID as attributes:
// - Bundle URLs, versions and checksums
// - Recipe titles, image file names, file paths
// - Request IDs and error messages
//
// SAFE attributes:
// - Operation names ("replace_premium", "download_bundle")
// - Status values ("success", "error")
// - Trigger ("start", "retry") and component names
//
// High-cardinality values belong in logs, which carry the trace id.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, duration)

	return err
}

// InstrumentInstall instruments one bundle install attempt. trigger tells a
// manual start from a retry.
func (t *Telemetry) InstrumentInstall(ctx context.Context, trigger string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveInstalls()
	defer t.DecrementActiveInstalls()

	err := t.InstrumentOperation(ctx, "bundle_install", "bundle", func(ctx context.Context) error {
		return fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "error"

		t.RecordSystemError("bundle", "install_failed")
	}

	t.RecordInstall(trigger, status, time.Since(start))

	return err
}

// InstrumentPhase wraps one installer phase (download, extract, write) in a span.
func (t *Telemetry) InstrumentPhase(ctx context.Context, phase string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	return t.InstrumentOperation(ctx, "install_"+phase, "installer", fn)
}
