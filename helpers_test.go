package formstage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidroman0O/formstage/store"
)

// TestLogger forwards engine logs to the test output and remembers warnings
type TestLogger struct {
	t *testing.T

	mu    sync.Mutex
	warns []string
}

func (l *TestLogger) Debug(format string, args ...interface{}) {
	l.t.Logf("[DEBUG] "+format, args...)
}

func (l *TestLogger) Info(format string, args ...interface{}) {
	l.t.Logf("[INFO] "+format, args...)
}

func (l *TestLogger) Warn(format string, args ...interface{}) {
	l.t.Logf("[WARN] "+format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *TestLogger) Error(format string, args ...interface{}) {
	l.t.Logf("[ERROR] "+format, args...)
}

func (l *TestLogger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

// sequentialIDs returns an ID generator producing "stage-1", "stage-2", ... per prefix.
func sequentialIDs() func(prefix string) string {
	var mu sync.Mutex
	counters := make(map[string]int)
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		counters[prefix]++
		return fmt.Sprintf("%s-%d", prefix, counters[prefix])
	}
}

// fixedClock returns a clock starting at a fixed instant and advancing one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestEngine(t *testing.T, backend store.Backend, opts ...Option) *Engine {
	t.Helper()
	if backend == nil {
		backend = store.NewMemoryStore()
	}
	base := []Option{
		WithLogger(&TestLogger{t: t}),
		WithIDGenerator(sequentialIDs()),
		WithClock(fixedClock()),
	}
	return New(backend, append(base, opts...)...)
}

// seedStages creates a category holding stages with the given names, in order.
func seedStages(t *testing.T, e *Engine, names ...string) (ProjectCategory, []Stage) {
	t.Helper()
	ctx := context.Background()

	cat, err := e.Stages.EnsureCategory(ctx, "Infrastructure", "Roads and bridges")
	require.NoError(t, err)

	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		st, err := e.Stages.AddStage(ctx, cat.ID, name)
		require.NoError(t, err)
		stages = append(stages, st)
	}
	return cat, stages
}

func stageNames(stages []Stage) string {
	parts := make([]string, len(stages))
	for i, st := range stages {
		parts[i] = fmt.Sprintf("%s(%d)", st.Name, st.Order)
	}
	return strings.Join(parts, " ")
}

func fieldLabels(fields []FormField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Label
	}
	return out
}

func textField(id, label string) FormField {
	return FormField{ID: id, Type: FieldText, Label: label}
}

func ptr[T any](v T) *T {
	return &v
}
