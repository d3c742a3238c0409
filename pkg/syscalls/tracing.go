package syscalls

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"os161/pkg/process"
	"os161/pkg/thread"
)

// start opens the span for one system call made by t. A nil t gets a root
// span so the call can still be refused.
func (d *Dispatcher) start(t *thread.Thread, call string, attrs ...attribute.KeyValue) trace.Span {
	attrs = append(attrs, attribute.String("boot.id", d.bootID))
	ctx := context.Background()
	if t != nil {
		ctx = t.Context()
	}
	if p := process.Of(t); p != nil {
		attrs = append(attrs, attribute.Int("pid", p.PID))
	}
	_, span := d.tracer.Start(ctx, "sys_"+call, trace.WithAttributes(attrs...))
	return span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
