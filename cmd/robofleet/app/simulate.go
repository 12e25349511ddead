package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/robofleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/robofleet/pkg/mqtt"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type simulateOptions struct {
	mqtt     *options.MqttOptions
	robotID  string
	interval time.Duration
	count    int
}

type simMessage struct {
	topic   string
	payload []byte
}

func newSimulateCommand() *cobra.Command {
	o := &simulateOptions{
		mqtt:     options.NewMqttOptions(),
		robotID:  "R1",
		interval: 5 * time.Second,
	}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish synthetic telemetry as one robot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if errs := o.mqtt.Validate(); len(errs) > 0 {
				return errs[0]
			}
			return o.run(genericapiserver.SetupSignalContext())
		},
	}
	o.mqtt.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&o.robotID, "robot", o.robotID, "Robot id to publish as.")
	cmd.Flags().DurationVar(&o.interval, "interval", o.interval, "Interval between telemetry rounds.")
	cmd.Flags().IntVar(&o.count, "count", o.count, "Rounds to publish, 0 runs until interrupted.")
	return cmd
}

func (o *simulateOptions) run(ctx context.Context) error {
	topics := topic.NewBuilder(o.mqtt.TopicRoot)
	heartbeat := topics.Telemetry(o.robotID, topic.KindHeartbeat)
	offline := mustJSON(map[string]bool{"isAlive": false})

	cfg := o.mqtt.ToClientConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = "robot-" + o.robotID
	}
	// The broker announces the robot offline if this process dies.
	cfg.WillTopic = heartbeat
	cfg.WillPayload = offline
	cfg.WillQoS = byte(o.mqtt.QoS)

	client, err := pkgmqtt.NewClient(cfg)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// A clean disconnect suppresses the will, so say goodbye explicitly.
		if err := client.Publish(shutdownCtx, heartbeat, o.mqtt.QoS, false, offline); err != nil {
			log.Error(err, "Failed to publish offline heartbeat")
		}
		client.Disconnect(shutdownCtx)
	}()
	if err := client.AwaitConnection(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for round := 0; o.count == 0 || round < o.count; round++ {
		for _, m := range simulatedRound(topics, o.robotID, round) {
			if err := client.Publish(ctx, m.topic, o.mqtt.QoS, false, m.payload); err != nil {
				return fmt.Errorf("publish %s: %w", m.topic, err)
			}
		}
		log.Info("Published telemetry round", "robot", o.robotID, "round", round)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// simulatedRound returns the messages of one round: the battery drains one
// percent per round and the robot walks east along a corridor.
func simulatedRound(topics *topic.Builder, robotID string, round int) []simMessage {
	battery := 100 - round%101
	return []simMessage{
		{topics.Telemetry(robotID, topic.KindHeartbeat), mustJSON(map[string]bool{"isAlive": true})},
		{topics.Telemetry(robotID, topic.KindLocation), mustJSON(map[string]any{
			"lat": 10.7769, "lon": 106.7009 + float64(round)*0.0001, "roomCode": "LOBBY",
		})},
		{topics.Telemetry(robotID, topic.KindBattery), mustJSON(map[string]int{"battery": battery})},
		{topics.Telemetry(robotID, topic.KindStatus), mustJSON(map[string]string{"status": "AVAILABLE"})},
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
