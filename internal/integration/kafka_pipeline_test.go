//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/geoaggregate/internal/adapter/csvout"
	"github.com/couchcryptid/geoaggregate/internal/adapter/kafka"
	"github.com/couchcryptid/geoaggregate/internal/adapter/linelist"
	"github.com/couchcryptid/geoaggregate/internal/adapter/zones"
	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/couchcryptid/geoaggregate/internal/observability"
	"github.com/couchcryptid/geoaggregate/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testSinkTopic = "test-weekly-counts"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("geoaggregate-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// publishedCell holds a deserialized message read from the sink topic.
type publishedCell struct {
	Cell    kafka.CellMessage
	Key     string
	Headers map[string]string
}

func readCells(ctx context.Context, t *testing.T, broker string, n int) []publishedCell {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]publishedCell, 0, n)
	for range n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from sink topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var cell kafka.CellMessage
		require.NoError(t, json.Unmarshal(msg.Value, &cell), "unmarshal sink message")
		out = append(out, publishedCell{Cell: cell, Key: string(msg.Key), Headers: headers})
	}
	return out
}

// TestKafkaWriterPublishesCells verifies the adapter layer: kafka.Writer
// publishes one keyed message per weekly cell.
func TestKafkaWriterPublishesCells(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	generated := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)
	report := domain.WeeklyReport{
		Categories:     []string{"gastroenteric"},
		SpeciesTracked: true,
		RunID:          "run-1",
		GeneratedAt:    generated,
		Cells: []domain.WeeklyCell{
			{Zone: "north", Species: "dog", PeriodStart: 19783, Counts: domain.Counts{Total: 3, ByCategory: []int{2}}},
			{Zone: "south", Species: "cat", PeriodStart: 19783, Counts: domain.Counts{Total: 0, ByCategory: []int{0}}},
		},
	}

	writer := kafka.NewWriter([]string{broker}, testSinkTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Load(ctx, report))

	cells := readCells(ctx, t, broker, 2)
	assert.Equal(t, "north|dog|2024-03-01", cells[0].Key)
	assert.Equal(t, "run-1", cells[0].Headers["run_id"])
	assert.Equal(t, generated.Format(time.RFC3339), cells[0].Headers["generated_at"])
	assert.Equal(t, 3, cells[0].Cell.TotalCount)
	assert.Equal(t, map[string]int{"gastroenteric": 2}, cells[0].Cell.Categories)
	assert.Equal(t, "south|cat|2024-03-01", cells[1].Key)
	assert.Equal(t, 0, cells[1].Cell.TotalCount)
}

// TestPipelineEndToEnd runs the fixture linelist through the pipeline with a
// CSV and a Kafka sink and checks that both agree.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	fixtures := filepath.Join("..", "pipeline", "testdata")
	index, err := zones.LoadIndex(filepath.Join(fixtures, "zones.geojson"), zones.DefaultLabelField)
	require.NoError(t, err)

	writer := kafka.NewWriter([]string{broker}, testSinkTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	out := filepath.Join(t.TempDir(), "weekly.csv")
	p := pipeline.New([]pipeline.Sink{
		{Name: "kafka", Loader: writer},
		{Name: "csv", Loader: csvout.NewFileSink(out)},
	}, discardLogger(), observability.NewMetricsForTesting())
	p.SetZones(index)

	src := linelist.NewFileSource(filepath.Join(fixtures, "linelist.csv"), linelist.DefaultColumns())
	report, err := p.Run(ctx, src, domain.Options{Categories: []string{"gastroenteric", "respiratory"}})
	require.NoError(t, err)
	require.Len(t, report.Cells, 8)

	cells := readCells(ctx, t, broker, len(report.Cells))
	total := 0
	for _, c := range cells {
		assert.Equal(t, report.RunID, c.Cell.RunID)
		assert.Equal(t, report.RunID, c.Headers["run_id"])
		total += c.Cell.TotalCount
	}
	assert.Equal(t, report.TotalCount(), total)
	assert.Equal(t, 8, total, "nine records minus the one outside both zones")
	assert.FileExists(t, out)
}
