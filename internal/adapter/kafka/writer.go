package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geoaggregate/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes weekly cells to a Kafka topic, one message per cell.
// It implements pipeline.ReportLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the given brokers and topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Load serializes every weekly cell of the report and publishes them in a
// single WriteMessages call. Keys are stable across runs, so a compacted topic
// keeps only the latest count per cell.
func (w *Writer) Load(ctx context.Context, report domain.WeeklyReport) error {
	if len(report.Cells) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(report.Cells))
	for i := range report.Cells {
		msg, err := serializeToMessage(report, report.Cells[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish weekly cells: %w", err)
	}
	w.logger.Debug("published weekly cells", "count", len(msgs), "run_id", report.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// CellMessage is the JSON value of one published weekly cell.
type CellMessage struct {
	RunID       string         `json:"run_id,omitempty"`
	Label       string         `json:"label"`
	Species     string         `json:"species,omitempty"`
	WeekStart   string         `json:"week_start"`
	TotalCount  int            `json:"total_count"`
	Categories  map[string]int `json:"categories"`
	Alignment   string         `json:"alignment"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// MessageKey is label|species|week_start.
func MessageKey(c domain.WeeklyCell) string {
	return c.Zone + "|" + c.Species + "|" + c.PeriodStart.String()
}

func newCellMessage(report domain.WeeklyReport, c domain.WeeklyCell) CellMessage {
	cats := make(map[string]int, len(report.Categories))
	for i, name := range report.Categories {
		cats[name] = c.Counts.ByCategory[i]
	}
	return CellMessage{
		RunID:       report.RunID,
		Label:       c.Zone,
		Species:     c.Species,
		WeekStart:   c.PeriodStart.String(),
		TotalCount:  c.Counts.Total,
		Categories:  cats,
		Alignment:   report.Alignment.String(),
		GeneratedAt: report.GeneratedAt,
	}
}

// serializeToMessage marshals one weekly cell into a Kafka message.
func serializeToMessage(report domain.WeeklyReport, c domain.WeeklyCell) (kafkago.Message, error) {
	data, err := json.Marshal(newCellMessage(report, c))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize weekly cell: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(c)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(report.RunID)},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
