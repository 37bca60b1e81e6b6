// Package profile times the activities of a compilation session.
//
// Every activity is recorded in memory (so the driver and its tests can see
// what ran, in completion order) and mirrored as an OpenTelemetry span.
package profile

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vk/cratedrive"

// Activity is one finished, timed unit of work.
type Activity struct {
	Name     string
	Start    time.Time
	Duration time.Duration
}

// Profiler records activities for one session.
type Profiler struct {
	tracer trace.Tracer

	mu           sync.Mutex
	activities   []Activity
	queryStrings map[string]uint32
}

// New returns a profiler that reports spans through the global
// OpenTelemetry tracer provider.
func New() *Profiler {
	return NewWithTracer(otel.Tracer(tracerName))
}

// NewWithTracer returns a profiler that reports spans through tracer.
func NewWithTracer(tracer trace.Tracer) *Profiler {
	return &Profiler{tracer: tracer, queryStrings: make(map[string]uint32)}
}

// Timer is a running activity. Call Finish exactly once.
type Timer struct {
	p     *Profiler
	name  string
	start time.Time
	span  trace.Span
}

// GenericActivity starts timing an activity named name.
func (p *Profiler) GenericActivity(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Timer) {
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Timer{p: p, name: name, start: time.Now(), span: span}
}

// Finish stops the timer and records the activity.
func (t *Timer) Finish() {
	d := time.Since(t.start)
	t.span.End()
	t.p.mu.Lock()
	t.p.activities = append(t.p.activities, Activity{Name: t.name, Start: t.start, Duration: d})
	t.p.mu.Unlock()
}

// Time runs fn as an activity named name.
func (p *Profiler) Time(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx, timer := p.GenericActivity(ctx, name)
	defer timer.Finish()
	fn(ctx)
}

// TimeErr runs fn as an activity named name and records a failure on the
// span when fn returns an error.
func (p *Profiler) TimeErr(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, timer := p.GenericActivity(ctx, name)
	defer timer.Finish()
	err := fn(ctx)
	if err != nil {
		timer.span.RecordError(err)
		timer.span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Activities returns the finished activities in completion order.
func (p *Profiler) Activities() []Activity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.activities)
}

// ActivityNames returns the names of finished activities in completion order.
func (p *Profiler) ActivityNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.activities))
	for i, a := range p.activities {
		names[i] = a.Name
	}
	return names
}

// Count returns how many times an activity named name finished.
func (p *Profiler) Count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, a := range p.activities {
		if a.Name == name {
			n++
		}
	}
	return n
}

// AllocQueryString interns s in the profile's string table and returns its id.
func (p *Profiler) AllocQueryString(s string) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.queryStrings[s]; ok {
		return id
	}
	id := uint32(len(p.queryStrings))
	p.queryStrings[s] = id
	return id
}

// QueryStrings returns the interned strings ordered by id.
func (p *Profiler) QueryStrings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.queryStrings))
	for s, id := range p.queryStrings {
		out[id] = s
	}
	return out
}
