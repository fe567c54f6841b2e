package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewFileExporter_CreatesParentDirectories(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "nested", "dir", "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	_, err = os.Stat(tracePath)
	require.NoError(t, err, "trace file should be created with parent dirs")

	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestFileExporter_WritesJSONL(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	start := time.Now()
	stubs := []tracetest.SpanStub{
		{
			Name:      "task.run",
			StartTime: start,
			EndTime:   start.Add(50 * time.Millisecond),
			Attributes: []attribute.KeyValue{
				attribute.String(AttrTaskID, "b1"),
				attribute.String(AttrTaskKind, "bash"),
			},
		},
		{
			Name:      "team.spawn",
			StartTime: start,
			EndTime:   start.Add(10 * time.Millisecond),
		},
	}
	spans := make([]sdktrace.ReadOnlySpan, len(stubs))
	for i, s := range stubs {
		spans[i] = s.Snapshot()
	}

	require.NoError(t, exporter.ExportSpans(context.Background(), spans))
	require.NoError(t, exporter.Shutdown(context.Background()))

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var records []SpanRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec SpanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "each line should be valid JSON")
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, records, 2)

	require.Equal(t, "task.run", records[0].Name)
	require.Equal(t, "b1", records[0].Attributes[AttrTaskID])
	require.Equal(t, "bash", records[0].Attributes[AttrTaskKind])
	require.InDelta(t, 50.0, records[0].DurationMs, 1.0)
	require.Equal(t, "team.spawn", records[1].Name)
}

func TestFileExporter_ExportAfterShutdown(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))

	// Double shutdown is a no-op.
	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestFileExporter_EmptyBatch(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)
	defer func() { _ = exporter.Shutdown(context.Background()) }()

	require.NoError(t, exporter.ExportSpans(context.Background(), nil))
}
