// Package intake feeds evidence from the message bus into the evidence
// store. Document signals that only carry a document key are completed with
// the fields stored in the document bucket before they are recorded.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/gpnet/caseengine/internal/domain/evidence"
)

// MessageReader is the subset of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recorder stores a validated evidence item.
type Recorder interface {
	Record(ctx context.Context, it *evidence.Item) error
}

// NewKafkaReader returns a consumer-group reader for the evidence topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

type Consumer struct {
	reader   MessageReader
	recorder Recorder
	docs     DocumentStore
	logger   zerolog.Logger
}

// NewConsumer wires a reader to the evidence recorder. docs may be nil, in
// which case document signals are recorded as received.
func NewConsumer(reader MessageReader, recorder Recorder, docs DocumentStore, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader:   reader,
		recorder: recorder,
		docs:     docs,
		logger:   logger.With().Str("component", "intake").Logger(),
	}
}

// Run consumes until ctx is cancelled. A message is committed once it is
// recorded or rejected as permanently invalid. Any other failure stops Run
// with the message uncommitted so the group redelivers it.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("evidence consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("evidence consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		log := c.logger.With().Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()
		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !permanent(err) {
				return fmt.Errorf("offset %d left uncommitted: %w", msg.Offset, err)
			}
			log.Error().Err(err).Msg("evidence message rejected")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// permanent reports whether redelivering the message could never succeed.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidEnvelope) ||
		errors.Is(err, evidence.ErrInvalidItem) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrDocumentTooLarge) ||
		errors.Is(err, ErrDocumentInvalid)
}

// Supervise keeps a consumer running until ctx is cancelled. When a consumer
// stops on a failure it is closed and replaced after delay; the new reader
// rejoins the group and resumes from the last committed offset.
func Supervise(ctx context.Context, newConsumer func() *Consumer, delay time.Duration, logger zerolog.Logger) {
	for {
		c := newConsumer()
		err := c.Run(ctx)
		if cerr := c.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close evidence reader")
		}
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Dur("restart_in", delay).Msg("evidence consumer stopped")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Close releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	it, err := DecodeEnvelope(msg.Value)
	if err != nil {
		return err
	}
	if err := c.resolveDocument(ctx, &it); err != nil {
		return err
	}
	if err := c.recorder.Record(ctx, &it); err != nil {
		return fmt.Errorf("record evidence for case %s: %w", it.CaseID, err)
	}
	c.logger.Debug().Str("case_id", it.CaseID.String()).Str("item_id", it.ID.String()).
		Str("kind", string(it.Kind)).Msg("evidence recorded")
	return nil
}

// resolveDocument fills in the extracted fields of a document signal that
// only names its document key.
func (c *Consumer) resolveDocument(ctx context.Context, it *evidence.Item) error {
	if it.Kind != evidence.KindDocumentSignal || c.docs == nil {
		return nil
	}
	p, err := it.Decode()
	if err != nil {
		// Left for the recorder to reject.
		return nil
	}
	sig := p.(evidence.DocumentSignal)
	if sig.DocumentKey == "" || len(sig.ExtractedFields) > 0 {
		return nil
	}

	fields, err := c.docs.Fields(ctx, sig.DocumentKey)
	if err != nil {
		return fmt.Errorf("document %s: %w", sig.DocumentKey, err)
	}
	sig.ExtractedFields = fields
	if sig.Classification == "" {
		sig.Classification = fields["classification"]
	}
	resolved, err := evidence.NewItem(it.CaseID, it.Source, it.ReceivedAt, sig)
	if err != nil {
		return err
	}
	it.Payload = resolved.Payload
	return nil
}
