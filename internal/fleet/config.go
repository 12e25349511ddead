package fleet

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/internal/fleet/liveness"
	"github.com/autopeer-io/robofleet/internal/fleet/mailer"
	"github.com/autopeer-io/robofleet/internal/fleet/notifier"
	"github.com/autopeer-io/robofleet/internal/fleet/pickup"
	"github.com/autopeer-io/robofleet/internal/fleet/router"
	"github.com/autopeer-io/robofleet/internal/fleet/server"
	"github.com/autopeer-io/robofleet/internal/fleet/server/http"
	"github.com/autopeer-io/robofleet/internal/fleet/server/mqtt"
	"github.com/autopeer-io/robofleet/internal/fleet/storage"
	"github.com/autopeer-io/robofleet/internal/fleet/storage/s3"
	"github.com/autopeer-io/robofleet/internal/fleet/storage/sqlite"
	"github.com/autopeer-io/robofleet/internal/fleet/telemetry"
	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/robofleet/pkg/mqtt"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type Config struct {
	HttpOptions      *options.HttpOptions
	MqttOptions      *options.MqttOptions
	StoreOptions     *options.StoreOptions
	S3Options        *options.S3Options
	TelemetryOptions *options.TelemetryOptions
	PickupOptions    *options.PickupOptions
	SmtpOptions      *options.SmtpOptions
}

// NewFleetServer assembles every component. Nothing is started and no
// connection is opened except the SQLite file.
func (cfg *Config) NewFleetServer() (*FleetServer, error) {
	store, err := sqlite.Open(cfg.StoreOptions.Path)
	if err != nil {
		return nil, err
	}

	// Telemetry rows go to SQLite or S3. Orders, trips and codes always stay in SQLite.
	var (
		robots     core.RobotRepository     = store.Robot()
		containers core.ContainerRepository = store.Container()
		bucket     *s3.Store
	)
	if cfg.StoreOptions.TelemetryBackend == options.TelemetryBackendS3 {
		bucket, err = s3.New(cfg.S3Options)
		if err != nil {
			store.Close()
			return nil, err
		}
		robots, containers = bucket.Robot(), bucket.Container()
	}

	tel := cfg.TelemetryOptions
	pipeline := storage.NewPipeline(storage.PipelineConfig{
		BufferSize:    tel.BufferSize,
		FlushInterval: tel.FlushInterval,
		Workers:       tel.FlushWorkers,
		WriteTimeout:  tel.WriteTimeout,
		DrainTimeout:  tel.DrainTimeout,
	})

	tracker := liveness.NewTracker(nil, tel.HeartbeatTimeout)
	telemetrySvc, err := telemetry.NewService(telemetry.Config{
		Tracker:         tracker,
		Scheduler:       pipeline,
		Robots:          robots,
		Containers:      containers,
		AvailableStatus: tel.AvailableStatus,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	tracker.OnOffline(telemetrySvc.HandleOffline)

	clientCfg := cfg.MqttOptions.ToClientConfig()
	if clientCfg.ClientID == "" {
		clientCfg.ClientID = "robofleet-" + uuid.NewString()[:8]
	}
	clientCfg.OnConnectionLost = func(err error) {
		n := telemetrySvc.MarkAllOffline()
		log.Warn("Broker connection lost, all robots marked offline", "robots", n, "reason", fmt.Sprint(err))
	}
	mqttClient, err := pkgmqtt.NewClient(clientCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}
	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

	commands := notifier.NewMQTTNotifier(mqttClient, topics, cfg.MqttOptions.QoS)
	pickupSvc := pickup.NewService(pickup.Config{
		CodeTTL:      cfg.PickupOptions.CodeTTL,
		ResendWindow: cfg.PickupOptions.ResendWindow,
		ResendLimit:  cfg.PickupOptions.ResendLimit,
		MailTimeout:  cfg.SmtpOptions.Timeout,
		MailSubject:  cfg.PickupOptions.MailSubject,
	}, store, mailer.New(cfg.SmtpOptions), commands)

	rt := router.New(topics.Root(), telemetrySvc, pickupSvc)

	httpServer := http.NewServer(http.Config{
		Options:  cfg.HttpOptions,
		Gatherer: metrics.Registry,
		Robots:   telemetrySvc,
		Checks: map[string]http.ReadinessCheck{
			"mqtt":  mqttReady(mqttClient),
			"store": store.Ping,
		},
	})

	srvManager := server.NewManager(
		mqtt.NewServer(mqttClient, topics, rt, cfg.MqttOptions.QoS),
		httpServer,
		&liveness.Sweeper{
			Tracker:  tracker,
			Log:      log.Logr().WithName("liveness"),
			Interval: tel.SweepInterval,
		},
		&pickup.GarbageCollector{
			Service:         pickupSvc,
			Log:             log.Logr().WithName("pickup-gc"),
			CleanupInterval: cfg.PickupOptions.CleanupInterval,
		},
	)

	return &FleetServer{
		serverManager: srvManager,
		pipeline:      pipeline,
		store:         store,
		bucket:        bucket,
		telemetry:     telemetrySvc,
		pickup:        pickupSvc,
	}, nil
}
