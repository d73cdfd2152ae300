package naming

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/avx-core/internal/infrastructure/mqtt"
)

// RetainedClient is the part of *mqtt.Client the MQTT backend needs.
type RetainedClient interface {
	PublishRetained(topic string, payload []byte) error
	ReadRetained(ctx context.Context, topic string) ([]byte, error)
}

// MQTT stores names as retained messages, so a lookup is answered by the
// broker even while the registering controller is briefly disconnected.
type MQTT struct {
	client RetainedClient
	topics mqtt.Topics
}

// NewMQTT creates an MQTT-backed naming service.
func NewMQTT(client RetainedClient) *MQTT {
	return &MQTT{client: client}
}

// Register publishes uri as the retained message for name.
func (m *MQTT) Register(_ context.Context, name, uri string) error {
	if err := validate(name, uri); err != nil {
		return err
	}
	if err := m.client.PublishRetained(m.topics.Naming(name), []byte(uri)); err != nil {
		return fmt.Errorf("naming: registering %s: %w", name, err)
	}
	return nil
}

// Lookup reads the retained message for name. Callers should bound ctx;
// a name nobody registered is only detected when ctx expires.
func (m *MQTT) Lookup(ctx context.Context, name string) (string, error) {
	payload, err := m.client.ReadRetained(ctx, m.topics.Naming(name))
	if err != nil {
		if errors.Is(err, mqtt.ErrTimeout) {
			return "", fmt.Errorf("%w: %s", ErrNameNotFound, name)
		}
		return "", fmt.Errorf("naming: looking up %s: %w", name, err)
	}

	uri := strings.TrimSpace(string(payload))
	if uri == "" {
		return "", fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}
	return uri, nil
}

// Unregister clears the retained message for name.
func (m *MQTT) Unregister(_ context.Context, name string) error {
	if err := m.client.PublishRetained(m.topics.Naming(name), nil); err != nil {
		return fmt.Errorf("naming: unregistering %s: %w", name, err)
	}
	return nil
}
