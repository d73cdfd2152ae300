package mqtt

import (
	"context"
	"fmt"
)

// Subscribe routes messages matching topic (wildcards allowed) to handler.
// The subscription is remembered and restored after a reconnect.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or wrapping ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.paho.Subscribe(topic, qos, c.wrapHandler(handler)), ackTimeout, ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for topic. Messages already in flight may
// still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	return await(c.paho.Unsubscribe(topic), ackTimeout, ErrUnsubscribeFailed)
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether exactly topic is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// ReadRetained returns the message the broker holds for topic.
//
// It subscribes, takes the first non-empty payload and unsubscribes. The
// naming backend answers lookups this way, so ctx should carry a deadline:
// a topic with nothing retained only ends when ctx does.
//
// Returns:
//   - []byte: The retained payload
//   - error: Wrapping ErrTimeout when ctx ends first, or a subscribe failure
func (c *Client) ReadRetained(ctx context.Context, topic string) ([]byte, error) {
	got := make(chan []byte, 1)
	err := c.Subscribe(topic, byte(c.cfg.QoS), func(_ string, payload []byte) error {
		if len(payload) > 0 {
			select {
			case got <- append([]byte(nil), payload...):
			default:
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer c.Unsubscribe(topic) //nolint:errcheck // late messages are dropped by the full channel

	select {
	case payload := <-got:
		return payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: reading retained %s: %w", ErrTimeout, topic, ctx.Err())
	}
}
