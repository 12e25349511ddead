package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
)

// Publisher is the slice of pkg/mqtt.Client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
}

// MQTTNotifier publishes robot commands as JSON.
type MQTTNotifier struct {
	client Publisher
	topics *topic.Builder
	qos    int
}

var _ core.CommandPublisher = (*MQTTNotifier)(nil)

func NewMQTTNotifier(client Publisher, topics *topic.Builder, qos int) *MQTTNotifier {
	return &MQTTNotifier{client: client, topics: topics, qos: qos}
}

// OpenContainer publishes to {root}/{robot}/container/{container}/command/pickup.
func (n *MQTTNotifier) OpenContainer(ctx context.Context, robotCode, containerCode string, cmd *core.ContainerCommand) error {
	return n.publish(ctx, n.topics.ContainerPickup(robotCode, containerCode), cmd)
}

// LoadContainer publishes to {root}/{robot}/container/{container}/command/load.
func (n *MQTTNotifier) LoadContainer(ctx context.Context, robotCode, containerCode string, cmd *core.ContainerCommand) error {
	return n.publish(ctx, n.topics.ContainerLoad(robotCode, containerCode), cmd)
}

// InvalidateQR publishes to {root}/{robot}/command/qr.
func (n *MQTTNotifier) InvalidateQR(ctx context.Context, robotCode string, cmd *core.QRCommand) error {
	return n.publish(ctx, n.topics.QR(robotCode), cmd)
}

// Move publishes to {root}/{robot}/command/move.
func (n *MQTTNotifier) Move(ctx context.Context, robotCode string, cmd *core.MoveCommand) error {
	return n.publish(ctx, n.topics.Move(robotCode), cmd)
}

func (n *MQTTNotifier) publish(ctx context.Context, t string, cmd any) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, t, n.qos, false, payload); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	return nil
}
