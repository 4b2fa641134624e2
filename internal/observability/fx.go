package observability

import (
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewTracerProvider,
		NewMetrics,
	),
	// Constructors are lazy; force the tracer pipeline up with the app.
	fx.Invoke(func(*trace.TracerProvider) {}),
)
