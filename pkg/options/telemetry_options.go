package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TelemetryOptions)(nil)

// TelemetryOptions tunes liveness and the durable write-through.
type TelemetryOptions struct {
	HeartbeatTimeout time.Duration `json:"heartbeat-timeout" mapstructure:"heartbeat-timeout"`
	SweepInterval    time.Duration `json:"sweep-interval" mapstructure:"sweep-interval"`

	FlushInterval time.Duration `json:"flush-interval" mapstructure:"flush-interval"`
	BufferSize    int           `json:"buffer-size" mapstructure:"buffer-size"`
	FlushWorkers  int           `json:"flush-workers" mapstructure:"flush-workers"`
	WriteTimeout  time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// DrainTimeout bounds the final flush on shutdown.
	DrainTimeout time.Duration `json:"drain-timeout" mapstructure:"drain-timeout"`

	// AvailableStatus is the status value that marks a robot free for dispatch.
	AvailableStatus string `json:"available-status" mapstructure:"available-status"`
}

func NewTelemetryOptions() *TelemetryOptions {
	return &TelemetryOptions{
		HeartbeatTimeout: 30 * time.Second,
		SweepInterval:    time.Second,
		FlushInterval:    time.Second,
		BufferSize:       5000,
		FlushWorkers:     8,
		WriteTimeout:     5 * time.Second,
		DrainTimeout:     5 * time.Second,
		AvailableStatus:  "AVAILABLE",
	}
}

func (o *TelemetryOptions) Validate() []error {
	errs := []error{}
	if o.HeartbeatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--telemetry.heartbeat-timeout must be positive"))
	}
	if o.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("--telemetry.sweep-interval must be positive"))
	}
	if o.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("--telemetry.flush-interval must be positive"))
	}
	if o.BufferSize < 1 || o.FlushWorkers < 1 {
		errs = append(errs, fmt.Errorf("--telemetry.buffer-size and --telemetry.flush-workers must be positive"))
	}
	return errs
}

func (o *TelemetryOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.HeartbeatTimeout, "telemetry.heartbeat-timeout", o.HeartbeatTimeout, "A robot silent for this long is considered offline.")
	fs.DurationVar(&o.SweepInterval, "telemetry.sweep-interval", o.SweepInterval, "Interval of the liveness sweep.")
	fs.DurationVar(&o.FlushInterval, "telemetry.flush-interval", o.FlushInterval, "Interval at which cached telemetry is written to the durable store.")
	fs.IntVar(&o.BufferSize, "telemetry.buffer-size", o.BufferSize, "Pending write-through tasks before new ones are shed.")
	fs.IntVar(&o.FlushWorkers, "telemetry.flush-workers", o.FlushWorkers, "Concurrent durable writes per flush.")
	fs.DurationVar(&o.WriteTimeout, "telemetry.write-timeout", o.WriteTimeout, "Timeout of a single durable write.")
	fs.DurationVar(&o.DrainTimeout, "telemetry.drain-timeout", o.DrainTimeout, "How long shutdown waits for pending writes.")
	fs.StringVar(&o.AvailableStatus, "telemetry.available-status", o.AvailableStatus, "Robot status value meaning free for a new order (case-insensitive).")
}
