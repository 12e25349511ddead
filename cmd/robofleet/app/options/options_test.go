package options

import (
	"strings"
	"testing"

	"github.com/autopeer-io/robofleet/pkg/options"
)

func TestDefaultsAreValid(t *testing.T) {
	o := NewFleetOptions()
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if _, err := o.Config(); err != nil {
		t.Fatalf("Config() = %v", err)
	}
}

func TestValidateAggregates(t *testing.T) {
	o := NewFleetOptions()
	o.MqttOptions.QoS = 5
	o.PickupOptions.ResendLimit = 0
	o.StoreOptions.TelemetryBackend = options.TelemetryBackendS3
	o.S3Options.BucketName = ""

	err := o.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want errors")
	}
	for _, want := range []string{"--mqtt.qos", "--pickup.resend-limit", "--s3.bucket-name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %q", err, want)
		}
	}
}

func TestFlagsCoverEveryGroup(t *testing.T) {
	fss := NewFleetOptions().Flags()
	for _, name := range []string{"http", "mqtt", "store", "s3", "telemetry", "pickup", "smtp", "log"} {
		if _, ok := fss.FlagSets[name]; !ok {
			t.Errorf("missing flag set %q", name)
		}
	}
}
