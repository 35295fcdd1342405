package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// WatermillPublisher implements Publisher over a watermill-nats publisher,
// grounded on internal/architecture/fx/eventbus_adapters.go's
// NewWatermillEventBus wiring.
type WatermillPublisher struct {
	pub         message.Publisher
	logger      *zap.Logger
	topicPrefix string
	bestEffort  bool
	retryDelay  time.Duration
}

// NewWatermillPublisher dials NATS and wraps it in a watermill publisher.
func NewWatermillPublisher(natsURL, topicPrefix string, bestEffort bool, retryDelay time.Duration, logger *zap.Logger) (*WatermillPublisher, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:       natsURL,
		Marshaler: nats.GobMarshaler{},
		NatsOptions: []natsgo.Option{
			natsgo.RetryOnFailedConnect(true),
			natsgo.ReconnectWait(time.Second),
			natsgo.MaxReconnects(-1),
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("connect nats publisher: %w", err)
	}

	return &WatermillPublisher{
		pub:         pub,
		logger:      logger,
		topicPrefix: topicPrefix,
		bestEffort:  bestEffort,
		retryDelay:  retryDelay,
	}, nil
}

func (p *WatermillPublisher) topic(parts ...string) string {
	t := p.topicPrefix
	for i, part := range parts {
		if i > 0 || t != "" {
			t += "."
		}
		t += part
	}
	return t
}

// publish is best-effort: one retry on failure (gated by
// publish.bestEffort), then logged at WARN and dropped (spec §4.5, §6, §7
// "PublishError"). It sends synchronously: the caller blocks for the send
// and, on a retry, for retryDelay as well.
func (p *WatermillPublisher) publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)

	err = p.pub.Publish(topic, msg)
	if err == nil {
		return nil
	}

	if p.bestEffort {
		time.Sleep(p.retryDelay)
		if retryErr := p.pub.Publish(topic, msg); retryErr == nil {
			return nil
		}
	}

	p.logger.Warn("publish failed, dropping event",
		zap.String("topic", topic), zap.Error(err))
	return err
}

func (p *WatermillPublisher) PublishTrade(_ context.Context, symbol string, trade TradeSnapshot) error {
	return p.publish(p.topic("trade", symbol), trade)
}

func (p *WatermillPublisher) PublishDepthDelta(_ context.Context, symbol string, bids, asks []DepthLevel) error {
	payload := struct {
		Symbol string       `json:"symbol"`
		Bids   []DepthLevel `json:"bids"`
		Asks   []DepthLevel `json:"asks"`
	}{Symbol: symbol, Bids: bids, Asks: asks}
	return p.publish(p.topic("depth", symbol), payload)
}

func (p *WatermillPublisher) PublishKlineUpdate(_ context.Context, symbol string, interval domain.Interval, k KlineSnapshot) error {
	return p.publish(p.topic("kline", symbol, string(interval)), k)
}

func (p *WatermillPublisher) PublishUserDataUpdate(_ context.Context, userID string, eventType UserDataEventType, payload interface{}) error {
	envelope := struct {
		Type UserDataEventType `json:"type"`
		Data interface{}       `json:"data"`
	}{Type: eventType, Data: payload}
	return p.publish(p.topic("userData", userID), envelope)
}

// Close releases the underlying NATS connection.
func (p *WatermillPublisher) Close() error {
	return p.pub.Close()
}
