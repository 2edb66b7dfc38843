package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
)

// Writer publishes daily precipitation rows to a Kafka topic.
// It implements series.RowSink.
type Writer struct {
	writer  *kafkago.Writer
	runID   string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for topic. runID is attached to every
// message so consumers can group the rows of one run.
func NewWriter(brokers []string, topic, runID string, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, runID: runID, logger: logger, metrics: metrics}
}

// Publish serializes one day's rows and writes them in a single
// WriteMessages call. Rows of one station share a partition.
func (w *Writer) Publish(ctx context.Context, rows []domain.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i], w.runID)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d rows: %w", len(msgs), err)
	}
	w.metrics.RowsPublished.Add(float64(len(msgs)))
	w.logger.Debug("rows published", "topic", w.writer.Topic, "rows", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an OutputRow into a Kafka message keyed by
// station id.
func serializeToMessage(row domain.OutputRow, runID string) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize output row: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(row.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "date", Value: []byte(row.Date)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
