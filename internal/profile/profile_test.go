package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProfiler(t *testing.T) (*Profiler, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithTracer(tp.Tracer("test")), rec
}

func TestProfiler_RecordsCompletionOrder(t *testing.T) {
	p, rec := newRecordingProfiler(t)
	ctx := context.Background()

	p.Time(ctx, "outer", func(ctx context.Context) {
		p.Time(ctx, "inner", func(context.Context) {})
	})

	assert.Equal(t, []string{"inner", "outer"}, p.ActivityNames())
	assert.Equal(t, 1, p.Count("outer"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "inner", spans[0].Name())
	assert.Equal(t, "outer", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID(), "inner span should nest under outer")
}

func TestProfiler_TimeErrMarksSpan(t *testing.T) {
	p, rec := newRecordingProfiler(t)
	boom := errors.New("disk full")

	err := p.TimeErr(context.Background(), "serialize_dep_graph", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "disk full", spans[0].Status().Description)
}

func TestProfiler_QueryStrings(t *testing.T) {
	p := New()
	a := p.AllocQueryString("parse")
	b := p.AllocQueryString("crate_name")
	again := p.AllocQueryString("parse")

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, []string{"parse", "crate_name"}, p.QueryStrings())
}
