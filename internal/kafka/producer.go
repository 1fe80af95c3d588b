package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
)

// Producer publishes refresh requests keyed by user id
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	now      func() time.Time
}

// NewProducer connects a synchronous producer to the configured brokers
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	sp, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewProducerWithClient(sp, cfg.Topic, logger), nil
}

// NewProducerWithClient wraps an existing sarama producer
func NewProducerWithClient(sp sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{
		producer: sp,
		topic:    topic,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PublishRefresh enqueues a refresh of every profile of each user and returns
// the generated request ids in input order
func (p *Producer) PublishRefresh(userIDs ...string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(userIDs))
	msgs := make([]*sarama.ProducerMessage, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" {
			return nil, fmt.Errorf("refresh request without user id: %w", domain.ErrInvalidRequest)
		}
		req := domain.RefreshRequest{
			RequestID:   uuid.NewString(),
			UserID:      userID,
			RequestedAt: p.now(),
		}
		data, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("encoding refresh request: %w", err)
		}
		ids = append(ids, req.RequestID)
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(userID),
			Value: sarama.ByteEncoder(data),
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return nil, fmt.Errorf("publishing refresh requests: %w", err)
	}

	p.logger.Info("refresh requests published",
		"topic", p.topic,
		"count", len(msgs),
	)
	return ids, nil
}

// Close flushes and closes the underlying producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
