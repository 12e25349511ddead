package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

const (
	TelemetryBackendSQLite = "sqlite"
	TelemetryBackendS3     = "s3"
)

// StoreOptions selects and configures the durable store.
type StoreOptions struct {
	// Path is the SQLite database file. Orders, trips and pickup codes always live here.
	Path string `json:"path" mapstructure:"path"`

	// TelemetryBackend chooses where robot and container rows are projected: sqlite or s3.
	TelemetryBackend string `json:"telemetry-backend" mapstructure:"telemetry-backend"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Path:             "./data/robofleet.db",
		TelemetryBackend: TelemetryBackendSQLite,
	}
}

func (o *StoreOptions) Validate() []error {
	errs := []error{}
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("--store.path is required"))
	}
	switch o.TelemetryBackend {
	case TelemetryBackendSQLite, TelemetryBackendS3:
	default:
		errs = append(errs, fmt.Errorf("--store.telemetry-backend must be %q or %q", TelemetryBackendSQLite, TelemetryBackendS3))
	}
	return errs
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "store.path", o.Path, "Path of the SQLite database file.")
	fs.StringVar(&o.TelemetryBackend, "store.telemetry-backend", o.TelemetryBackend, "Durable projection for robot/container telemetry: sqlite or s3.")
}
