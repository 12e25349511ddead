package fleet

import (
	"path/filepath"
	"testing"

	"github.com/autopeer-io/robofleet/pkg/options"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	store := options.NewStoreOptions()
	store.Path = filepath.Join(t.TempDir(), "fleet.db")
	return &Config{
		HttpOptions:      options.NewHttpOptions(),
		MqttOptions:      options.NewMqttOptions(),
		StoreOptions:     store,
		S3Options:        options.NewS3Options(),
		TelemetryOptions: options.NewTelemetryOptions(),
		PickupOptions:    options.NewPickupOptions(),
		SmtpOptions:      options.NewSmtpOptions(),
	}
}

func TestNewFleetServer(t *testing.T) {
	srv, err := newTestConfig(t).NewFleetServer()
	if err != nil {
		t.Fatalf("NewFleetServer() = %v", err)
	}
	defer srv.store.Close()

	if srv.Telemetry() == nil || srv.Pickup() == nil {
		t.Fatal("services not wired")
	}
	if srv.bucket != nil {
		t.Fatal("sqlite backend must not create a bucket client")
	}

	srv.Telemetry().Heartbeat("R7", true)
	if !srv.Telemetry().IsOnline("R7") {
		t.Fatal("heartbeat did not reach the liveness tracker")
	}
}

func TestNewFleetServerBadMqttBroker(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.MqttOptions.Broker = "not a url"
	if _, err := cfg.NewFleetServer(); err == nil {
		t.Fatal("NewFleetServer() with a bad broker must fail")
	}
}
