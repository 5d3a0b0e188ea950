/*
DESCRIPTION
  nats.go implements the task control bus over NATS JetStream using
  the watermill messaging toolkit.

LICENSE
  Copyright (C) 2025 the YouTube Live Chat DB System authors.

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package taskbus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig configures a NATSBus.
type NATSConfig struct {
	URL           string        // NATS server URL.
	Topic         string        // Task control topic, e.g., "dev.tasks.control".
	QueueGroup    string        // Queue group for load-balanced consumption.
	MaxReconnects int           // Reconnect attempts; -1 for unlimited.
	ReconnectWait time.Duration // Delay between reconnect attempts.
	AckWait       time.Duration // Redelivery timeout for unacknowledged messages.
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults for
// the given server URL and topic.
func DefaultNATSConfig(url, topic string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Topic:         topic,
		QueueGroup:    "dispatcher",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		AckWait:       30 * time.Second,
	}
}

// NATSBus implements Bus over NATS JetStream. Commands are published
// with a message ID for broker-side deduplication, and consumed from a
// durable queue group so that redeliveries survive dispatcher
// restarts.
type NATSBus struct {
	cfg        NATSConfig
	publisher  message.Publisher
	subscriber message.Subscriber
}

// NewNATSBus connects to NATS and returns a NATSBus.
func NewNATSBus(cfg NATSConfig, logger zerolog.Logger) (*NATSBus, error) {
	wmLogger := newWatermillLogger(logger)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("task bus disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("task bus reconnected")
		}),
	}

	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("cannot create task bus publisher: %w", err)
	}

	sub, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		AckWaitTimeout:   cfg.AckWait,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.QueueGroup,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.AckWait(cfg.AckWait),
			},
		},
	}, wmLogger)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("cannot create task bus subscriber: %w", err)
	}

	return &NATSBus{cfg: cfg, publisher: pub, subscriber: sub}, nil
}

// Send publishes a task message to the control topic.
func (b *NATSBus) Send(ctx context.Context, msg *TaskMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("cannot marshal task message: %w", err)
	}
	wm := message.NewMessage(uuid.New().String(), payload)
	wm.SetContext(ctx)
	err = b.publisher.Publish(b.cfg.Topic, wm)
	if err != nil {
		return fmt.Errorf("cannot publish task message: %w", err)
	}
	return nil
}

// Receive subscribes to the control topic and returns a channel of
// deliveries.
func (b *NATSBus) Receive(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := b.subscriber.Subscribe(ctx, b.cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to %s: %w", b.cfg.Topic, err)
	}
	return deliveries(msgs), nil
}

// Close closes the underlying publisher and subscriber.
func (b *NATSBus) Close() error {
	err := b.publisher.Close()
	err2 := b.subscriber.Close()
	if err != nil {
		return err
	}
	return err2
}

// deliveries adapts a watermill message channel into a Delivery
// channel, dropping (and acking) payloads that do not decode as task
// messages so that they are not redelivered forever.
func deliveries(msgs <-chan *message.Message) <-chan Delivery {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for wm := range msgs {
			tm, err := UnmarshalTaskMessage(wm.Payload)
			if err == nil {
				err = tm.Validate()
			}
			if err != nil {
				wm.Ack()
				continue
			}
			out <- Delivery{
				Msg:  tm,
				ack:  func() { wm.Ack() },
				nack: func() { wm.Nack() },
			}
		}
	}()
	return out
}

// watermillLogger adapts a zerolog logger to watermill's LoggerAdapter.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), msg, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.logger.Info(), msg, fields)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), msg, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), msg, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logger := l.logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) event(e *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
