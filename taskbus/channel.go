/*
DESCRIPTION
  channel.go implements the task control bus in process, using the
  watermill gochannel pub/sub.

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

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const channelBusTopic = "tasks.control"

// ChannelBus implements Bus in process. It carries the same
// at-least-once semantics as NATSBus (a nacked delivery is
// redelivered) but offers no durability across restarts. It serves
// standalone single-process operation and tests.
type ChannelBus struct {
	pubsub *gochannel.GoChannel
}

// NewChannelBus returns a new in-process bus. Commands published
// before the consumer subscribes are buffered and replayed to it.
func NewChannelBus(logger zerolog.Logger) *ChannelBus {
	return &ChannelBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            64,
				Persistent:                     true,
				BlockPublishUntilSubscriberAck: false,
			},
			newWatermillLogger(logger),
		),
	}
}

// Send publishes a task message.
func (b *ChannelBus) Send(ctx context.Context, msg *TaskMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("cannot marshal task message: %w", err)
	}
	wm := message.NewMessage(uuid.New().String(), payload)
	wm.SetContext(ctx)
	err = b.pubsub.Publish(channelBusTopic, wm)
	if err != nil {
		return fmt.Errorf("cannot publish task message: %w", err)
	}
	return nil
}

// Receive returns a channel of deliveries.
func (b *ChannelBus) Receive(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := b.pubsub.Subscribe(ctx, channelBusTopic)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe: %w", err)
	}
	return deliveries(msgs), nil
}

// Close closes the bus.
func (b *ChannelBus) Close() error {
	return b.pubsub.Close()
}
