package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/robofleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/robofleet/pkg/mqtt"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
)

const disconnectTimeout = 5 * time.Second

// Router dispatches one inbound message.
type Router interface {
	Route(ctx context.Context, topic string, payload []byte)
}

// Server implements the MQTT ingress layer.
type Server struct {
	client pkgmqtt.Client
	topics *topic.Builder
	router Router
	qos    int
	log    log.Logger
}

// NewServer creates a new MQTT server (client).
func NewServer(client pkgmqtt.Client, builder *topic.Builder, router Router, qos int) *Server {
	return &Server{
		client: client,
		topics: builder,
		router: router,
		qos:    qos,
		log:    log.WithName("mqtt-server"),
	}
}

// Start connects to the broker, subscribes to every robot topic and blocks
// until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		s.log.Info("Disconnecting MQTT client...")
		// ctx is already done here; the DISCONNECT packet needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
		s.log.Info("MQTT client disconnected")
	}()

	s.log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.log.Info("MQTT Connected")

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (s *Server) subscribe(ctx context.Context) error {
	for _, filter := range s.topics.Subscriptions() {
		if err := s.client.Subscribe(ctx, filter, s.qos, s.router.Route); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
		}
		s.log.Debug("Subscribed", "filter", filter)
	}
	return nil
}
