// Package fleet wires the robot fleet engine: MQTT ingress, the telemetry
// cache with liveness, durable write-through and pickup verification.
package fleet

import (
	"context"
	"errors"

	"github.com/autopeer-io/robofleet/internal/fleet/pickup"
	"github.com/autopeer-io/robofleet/internal/fleet/server"
	"github.com/autopeer-io/robofleet/internal/fleet/storage"
	"github.com/autopeer-io/robofleet/internal/fleet/storage/s3"
	"github.com/autopeer-io/robofleet/internal/fleet/storage/sqlite"
	"github.com/autopeer-io/robofleet/internal/fleet/telemetry"
	"github.com/autopeer-io/robofleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/robofleet/pkg/mqtt"
)

// FleetServer is the main application struct.
type FleetServer struct {
	serverManager *server.Manager
	pipeline      *storage.Pipeline
	store         *sqlite.Store
	bucket        *s3.Store

	telemetry *telemetry.Service
	pickup    *pickup.Service
}

// Telemetry exposes the telemetry facade.
func (a *FleetServer) Telemetry() *telemetry.Service { return a.telemetry }

// Pickup exposes the pickup verification service.
func (a *FleetServer) Pickup() *pickup.Service { return a.pickup }

// Run prepares storage, starts every component and blocks until ctx is
// cancelled or a component fails. Pending durable writes are drained before
// it returns.
func (a *FleetServer) Run(ctx context.Context) error {
	log.Info("Starting robofleet...")
	defer a.store.Close()

	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}
	if a.bucket != nil {
		if err := a.bucket.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	// The pipeline outlives the servers so that writes scheduled during
	// shutdown are still drained.
	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- a.pipeline.Start(pipelineCtx) }()

	err := a.serverManager.Start(ctx)

	stopPipeline()
	if drainErr := <-pipelineDone; drainErr != nil {
		log.Error(drainErr, "Write-through drain incomplete")
		err = errors.Join(err, drainErr)
	}

	log.Info("robofleet stopped")
	return err
}

func mqttReady(c pkgmqtt.Client) func(context.Context) error {
	return func(context.Context) error {
		if !c.IsConnected() {
			return errors.New("mqtt client not connected")
		}
		return nil
	}
}
