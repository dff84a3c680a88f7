package transmit

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// publisher is the slice of the paho client the remote transmitter needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Remote forwards payloads to a pre-existing remote-control entity by
// publishing the base64 form of the encapsulated packet to the entity's
// command topic. The entity (typically a Broadlink remote already paired
// with the host platform) performs the actual IR transmission.
type Remote struct {
	client publisher
	topic  string
	logger *slog.Logger
}

// NewRemote creates a remote-entity transmitter publishing to topic.
func NewRemote(client publisher, topic string, logger *slog.Logger) *Remote {
	return &Remote{
		client: client,
		topic:  topic,
		logger: logger.With("component", "remote", "topic", topic),
	}
}

// Transmit publishes the payload as a "b64:" prefixed command, the format
// the remote entity's send-command operation expects.
func (r *Remote) Transmit(ctx context.Context, payload []byte) error {
	cmd := "b64:" + base64.StdEncoding.EncodeToString(payload)

	token := r.client.Publish(r.topic, 1, false, cmd)

	timeout := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return &Error{Target: r.topic, Err: fmt.Errorf("publish timeout")}
	}
	if err := token.Error(); err != nil {
		return &Error{Target: r.topic, Err: err}
	}

	r.logger.Debug("command published", "bytes", len(payload))
	return nil
}

// Close is a no-op; the MQTT client is shared and owned by the caller.
func (r *Remote) Close() error { return nil }
