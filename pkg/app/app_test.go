package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	cliflag "k8s.io/component-base/cli/flag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

type sampleGroup struct {
	Broker  string `mapstructure:"broker"`
	Workers int    `mapstructure:"workers"`
}

func (g *sampleGroup) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&g.Broker, "mqtt.broker", g.Broker, "broker")
	fs.IntVar(&g.Workers, "mqtt.workers", g.Workers, "workers")
}

type sampleOptions struct {
	Mqtt      *sampleGroup `mapstructure:"mqtt"`
	completed bool
}

func (o *sampleOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Mqtt.AddFlags(fss.FlagSet("mqtt"))
	return fss
}

func (o *sampleOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *sampleOptions) Validate() error {
	var errs []error
	if o.Mqtt.Workers < 1 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	return utilerrors.NewAggregate(errs)
}

func TestFlagsAndConfigFileFillOptions(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "robofleet.yaml")
	if err := os.WriteFile(file, []byte("mqtt:\n  workers: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	opts := &sampleOptions{Mqtt: &sampleGroup{Broker: "tcp://default:1883", Workers: 8}}
	ran := false
	a := NewApp("robofleet-test", "test",
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithRunFunc(func() error { ran = true; return nil }),
	)
	a.Command().SetArgs([]string{"--mqtt.broker", "tcp://flag:1883", "--config", file})
	if err := a.Command().Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !ran || !opts.completed {
		t.Fatal("run func or Complete not invoked")
	}
	if opts.Mqtt.Broker != "tcp://flag:1883" {
		t.Errorf("broker = %q, want flag value", opts.Mqtt.Broker)
	}
	if opts.Mqtt.Workers != 3 {
		t.Errorf("workers = %d, want value from config file", opts.Mqtt.Workers)
	}
}

func TestValidationFailureStopsRun(t *testing.T) {
	opts := &sampleOptions{Mqtt: &sampleGroup{Workers: 1}}
	a := NewApp("robofleet-test", "test",
		WithOptions(opts),
		WithRunFunc(func() error { t.Fatal("run must not be called"); return nil }),
	)
	a.Command().SetArgs([]string{"--mqtt.workers", "0"})
	if err := a.Command().Execute(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDefaultValidArgsRejectsPositional(t *testing.T) {
	a := NewApp("robofleet-test", "test",
		WithOptions(&sampleOptions{Mqtt: &sampleGroup{Workers: 1}}),
		WithDefaultValidArgs(),
		WithRunFunc(func() error { return nil }),
	)
	a.Command().SetArgs([]string{"extra"})
	if err := a.Command().Execute(); err == nil {
		t.Fatal("expected positional argument error")
	}
}
