package formstage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMiddlewareOrder(t *testing.T) {
	ctx := context.Background()
	var calls []string
	record := func(name string) Middleware {
		return func(next OperationFunc) OperationFunc {
			return func(ctx context.Context, op *Operation, logger Logger) error {
				calls = append(calls, name+":before:"+op.Name)
				err := next(ctx, op, logger)
				calls = append(calls, name+":after:"+op.ResourceID)
				return err
			}
		}
	}

	e := newTestEngine(t, nil, WithMiddleware(record("outer")))
	e.Use(record("inner"))

	cat, err := e.Stages.EnsureCategory(ctx, "Infrastructure", "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"outer:before:" + OpCategoryCreated,
		"inner:before:" + OpCategoryCreated,
		"inner:after:" + cat.ID,
		"outer:after:" + cat.ID,
	}, calls)
}

func TestMiddlewareCanBlockOperations(t *testing.T) {
	ctx := context.Background()
	blocked := errors.New("maintenance window")
	e := newTestEngine(t, nil)
	cat, _ := seedStages(t, e)

	e.Use(func(next OperationFunc) OperationFunc {
		return func(ctx context.Context, op *Operation, logger Logger) error {
			if op.Name == OpStageAdded {
				return blocked
			}
			return next(ctx, op, logger)
		}
	})

	_, err := e.Stages.AddStage(ctx, cat.ID, "Draft")
	assert.ErrorIs(t, err, blocked)

	stages, err := e.Stages.Stages(ctx, cat.ID)
	require.NoError(t, err)
	assert.Empty(t, stages)
}

func TestLoggingMiddleware(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, "json", "debug")

	e := newTestEngine(t, nil, WithLogger(logger), WithMiddleware(LoggingMiddleware()))
	cat, _ := seedStages(t, e, "Draft")

	_, err := e.Stages.AddStage(ctx, cat.ID, "")
	require.Error(t, err)
	_, err = e.Stages.AddStage(ctx, "cat-404", "Ghost")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, OpStageAdded+" stage-1 completed")
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"service":"formstage"`)
}

func TestAuditMiddleware(t *testing.T) {
	ctx := context.Background()
	sink := &MemorySink{}
	e := newTestEngine(t, nil, WithAuditSink(sink))

	cat, stages := seedStages(t, e, "Draft", "Proposal")
	_, err := e.Stages.MoveStage(ctx, stages[0].ID, DirectionUp) // boundary, no event
	require.NoError(t, err)
	_, err = e.Stages.MoveStage(ctx, stages[1].ID, DirectionUp)
	require.NoError(t, err)
	_, err = e.Versions.Publish(ctx, stages[0].ID, []FormField{textField("f1", "A")}, "")
	require.NoError(t, err)
	_, err = e.Stages.RenameStage(ctx, "stage-404", "x") // failure, no event
	require.Error(t, err)

	assert.Equal(t, []string{
		OpCategoryCreated, OpStageAdded, OpStageAdded, OpStageMoved, OpFormPublished,
	}, sink.Actions())

	events := sink.Events()
	moved := events[3]
	assert.Equal(t, cat.ID, moved.Category)
	assert.Equal(t, stages[1].ID, moved.ResourceID)
	assert.False(t, moved.Timestamp.IsZero())
}

func TestAuditSinkFailureDoesNotFailOperation(t *testing.T) {
	logger := &TestLogger{t: t}
	failing := AuditSinkFunc(func(context.Context, Event) error {
		return errors.New("collector offline")
	})
	e := newTestEngine(t, nil, WithLogger(logger), WithAuditSink(failing))

	_, err := e.Stages.EnsureCategory(context.Background(), "Infrastructure", "")
	require.NoError(t, err)
	require.Len(t, logger.Warnings(), 1)
	assert.Contains(t, logger.Warnings()[0], "collector offline")
}

func TestJSONLinesSink(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t, nil, WithAuditSink(NewJSONLinesSink(&buf)))
	seedStages(t, e, "Draft")

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	events, err := ReadEvents(&buf)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, OpCategoryCreated, events[0].Action)
	assert.Equal(t, OpStageAdded, events[1].Action)
	assert.Equal(t, "stage-1", events[1].ResourceID)

	_, err = ReadEvents(strings.NewReader(`{"action":"x"}` + "\n" + `{broken`))
	assert.Error(t, err)
}

func TestPrometheusMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	e := newTestEngine(t, nil, WithMetrics(metrics))

	cat, _ := seedStages(t, e, "Draft")
	_, err := e.Stages.AddStage(ctx, "cat-404", "Ghost")
	require.Error(t, err)
	_, err = e.Stages.AddStage(ctx, cat.ID, "Proposal")
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues(OpStageAdded, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues(OpStageAdded, string(KindNotFound))))

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}
	require.Contains(t, byName, "formstage_operation_duration_seconds")
	assert.Equal(t, dto.MetricType_HISTOGRAM, byName["formstage_operation_duration_seconds"].GetType())

	s := e.NewSession()
	stages, err := e.Stages.Stages(ctx, cat.ID)
	require.NoError(t, err)
	_, err = s.Configure(ctx, stages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.activeSessions))
	require.NoError(t, s.Cancel())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.activeSessions))
}

func TestPrometheusCountsCorruptRecoveries(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	e := newTestEngine(t, nil, WithMetrics(metrics))
	kv := e.Repository().(*KVRepository)
	_, err := kv.Backend().Put(ctx, VersionsKey("cat-9"), []byte("{"), -1)
	require.NoError(t, err)

	_, _, err = kv.LoadVersions(ctx, "cat-9")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.storageRecoveries.WithLabelValues("formVersions")))
}

func TestTracingMiddleware(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(ctx)

	e := newTestEngine(t, nil, WithMiddleware(TracingMiddleware(provider.Tracer("formstage-test"))))
	cat, _ := seedStages(t, e)
	added, err := e.Stages.AddStage(ctx, cat.ID, "Draft")
	require.NoError(t, err)
	_, err = e.Stages.ReorderStages(ctx, cat.ID, 0, 5)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, OpCategoryCreated, spans[0].Name())
	assert.Equal(t, OpStageAdded, spans[1].Name())
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("formstage.category", cat.ID))
	assert.Contains(t, spans[1].Attributes(), attribute.String("formstage.resource", added.ID))
	assert.Contains(t, spans[0].Attributes(), attribute.String("formstage.category", cat.ID))
	assert.Equal(t, OpStagesReordered, spans[2].Name())
	assert.Equal(t, codes.Error, spans[2].Status().Code)
}

func TestOTelMetricsMiddleware(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(ctx)

	mw, err := OTelMetricsMiddleware(provider.Meter("formstage-test"))
	require.NoError(t, err)

	e := newTestEngine(t, nil, WithMiddleware(mw))
	seedStages(t, e, "Draft", "Proposal")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "formstage.operations" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), total)
}
