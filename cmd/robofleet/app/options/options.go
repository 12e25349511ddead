package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/robofleet/internal/fleet"
	"github.com/autopeer-io/robofleet/pkg/app"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type FleetOptions struct {
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	StoreOptions     *options.StoreOptions     `json:"store" mapstructure:"store"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	TelemetryOptions *options.TelemetryOptions `json:"telemetry" mapstructure:"telemetry"`
	PickupOptions    *options.PickupOptions    `json:"pickup" mapstructure:"pickup"`
	SmtpOptions      *options.SmtpOptions      `json:"smtp" mapstructure:"smtp"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*FleetOptions)(nil)
	_ app.LogOptioner         = (*FleetOptions)(nil)
)

func NewFleetOptions() *FleetOptions {
	return &FleetOptions{
		HttpOptions:      options.NewHttpOptions(),
		MqttOptions:      options.NewMqttOptions(),
		StoreOptions:     options.NewStoreOptions(),
		S3Options:        options.NewS3Options(),
		TelemetryOptions: options.NewTelemetryOptions(),
		PickupOptions:    options.NewPickupOptions(),
		SmtpOptions:      options.NewSmtpOptions(),
		Log:              log.NewOptions(),
	}
}

func (o *FleetOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.TelemetryOptions.AddFlags(fss.FlagSet("telemetry"))
	o.PickupOptions.AddFlags(fss.FlagSet("pickup"))
	o.SmtpOptions.AddFlags(fss.FlagSet("smtp"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *FleetOptions) Complete() error {
	return nil
}

func (o *FleetOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	if o.StoreOptions.TelemetryBackend == options.TelemetryBackendS3 {
		errs = append(errs, o.S3Options.Validate()...)
	}
	errs = append(errs, o.TelemetryOptions.Validate()...)
	errs = append(errs, o.PickupOptions.Validate()...)
	errs = append(errs, o.SmtpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *FleetOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *FleetOptions) Config() (*fleet.Config, error) {
	return &fleet.Config{
		HttpOptions:      o.HttpOptions,
		MqttOptions:      o.MqttOptions,
		StoreOptions:     o.StoreOptions,
		S3Options:        o.S3Options,
		TelemetryOptions: o.TelemetryOptions,
		PickupOptions:    o.PickupOptions,
		SmtpOptions:      o.SmtpOptions,
	}, nil
}
