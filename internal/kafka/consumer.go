package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
)

// RefreshHandler refreshes all of a user's profiles
type RefreshHandler interface {
	RefreshAllProfiles(ctx context.Context, userID string) (*domain.RefreshReport, error)
}

// Consumer consumes refresh requests from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       RefreshHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler RefreshHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return newConsumer(cfg, handler, consumerGroup, logger), nil
}

func newConsumer(cfg *config.KafkaConfig, handler RefreshHandler, group sarama.ConsumerGroup, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}
}

// Start begins consuming messages and returns once the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop cancels in-flight refreshes and closes the consumer group
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// processBatch refreshes each distinct user of the batch in arrival order.
// Every refresh runs under its own timeout derived from ctx.
func (c *Consumer) processBatch(ctx context.Context, batch []domain.RefreshRequest) {
	seen := make(map[string]struct{}, len(batch))
	for _, req := range batch {
		if _, dup := seen[req.UserID]; dup {
			c.logger.Debug("skipping duplicate refresh request",
				"user_id", req.UserID,
				"request_id", req.RequestID,
			)
			continue
		}
		seen[req.UserID] = struct{}{}

		if ctx.Err() != nil {
			c.logger.Warn("refresh request dropped on shutdown",
				"user_id", req.UserID,
				"request_id", req.RequestID,
			)
			continue
		}

		refreshCtx, cancel := context.WithTimeout(ctx, c.config.RefreshTimeout)
		report, err := c.handler.RefreshAllProfiles(refreshCtx, req.UserID)
		cancel()
		if err != nil {
			c.logger.Error("failed to process refresh request",
				"user_id", req.UserID,
				"request_id", req.RequestID,
				"error", err,
			)
			continue
		}
		c.logger.Info("processed refresh request",
			"user_id", req.UserID,
			"request_id", req.RequestID,
			"failed", report.Failed(),
			"total_score", report.TotalScore,
		)
	}
}

// decodeRequest parses and validates a refresh request message
func decodeRequest(value []byte) (domain.RefreshRequest, error) {
	var req domain.RefreshRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return req, fmt.Errorf("decoding refresh request: %w", err)
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return req, fmt.Errorf("refresh request without user id: %w", domain.ErrInvalidRequest)
	}
	return req, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim collects refresh requests into batches. Messages are marked
// only after their batch has been processed.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]domain.RefreshRequest, 0, cfg.BatchSize)
	var last *sarama.ConsumerMessage
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		if len(batch) > 0 {
			h.consumer.processBatch(session.Context(), batch)
			batch = batch[:0]
		}
		if last != nil {
			session.MarkMessage(last, "")
			last = nil
		}
	}

	for {
		select {
		case <-session.Context().Done():
			return nil

		case <-batchTimer.C:
			flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			last = message

			req, err := decodeRequest(message.Value)
			if err != nil {
				h.consumer.logger.Warn("invalid refresh request",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			batch = append(batch, req)
			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
