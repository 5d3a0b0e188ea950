/*
DESCRIPTION
  bus.go defines the task control bus interface and its message type.

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

// Package taskbus provides the task control bus carrying collection
// commands from the broadcast-state monitor to the dispatcher. Three
// implementations are provided: NATSBus over NATS JetStream for
// deployments with a broker, an in-process ChannelBus for standalone
// operation and testing, and an embedded NATS server for
// single-binary deployments that still want durable delivery.
//
// Delivery is at-least-once: consumers acknowledge each delivery, and
// an unacknowledged or negatively acknowledged delivery is redelivered.
// Consumers must therefore be idempotent.
package taskbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Action is a task control command.
type Action string

// Task control actions.
const (
	ActionStart Action = "start_collection"
	ActionStop  Action = "stop_collection"
)

// TaskMessage is one command on the task control bus, instructing the
// dispatcher to start or stop chat collection for a broadcast.
type TaskMessage struct {
	Action    Action    `json:"action"`
	VideoID   string    `json:"video_id"`
	ChannelID string    `json:"channel_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks that the message carries a known action and a video
// ID. Malformed messages are dropped by consumers rather than retried.
func (m *TaskMessage) Validate() error {
	if m.Action != ActionStart && m.Action != ActionStop {
		return fmt.Errorf("unknown action: %q", m.Action)
	}
	if m.VideoID == "" {
		return fmt.Errorf("missing video ID")
	}
	return nil
}

// Marshal encodes the message as JSON.
func (m *TaskMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalTaskMessage decodes a JSON-encoded task message.
func UnmarshalTaskMessage(data []byte) (*TaskMessage, error) {
	var m TaskMessage
	err := json.Unmarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("cannot unmarshal task message: %w", err)
	}
	return &m, nil
}

// Delivery is one received task message together with its
// acknowledgment controls. Ack marks the message consumed. Nack
// requests redelivery, used when transient conditions (such as worker
// capacity) prevent acting on the command now.
type Delivery struct {
	Msg  *TaskMessage
	ack  func()
	nack func()
}

// Ack marks the delivery consumed.
func (d *Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Nack requests redelivery.
func (d *Delivery) Nack() {
	if d.nack != nil {
		d.nack()
	}
}

// Bus is the task control bus. Send publishes a command. Receive
// returns a channel of deliveries which is closed when ctx is canceled
// or the bus is closed; a bus supports a single consumer.
type Bus interface {
	Send(ctx context.Context, msg *TaskMessage) error
	Receive(ctx context.Context) (<-chan Delivery, error)
	Close() error
}
