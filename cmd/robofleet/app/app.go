package app

import (
	"fmt"

	"github.com/spf13/cobra"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/robofleet/cmd/robofleet/app/options"
	"github.com/autopeer-io/robofleet/pkg/app"
)

const (
	commandName = "robofleet"
	commandDesc = `robofleet tracks a fleet of delivery robots over MQTT.

It keeps the latest telemetry of every robot in memory, decides which robots
are alive from their heartbeats, projects robot rows onto durable storage and
runs the one-time-code handshake that unlocks a container for its receiver.`
)

// NewRootCommand returns the robofleet command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           commandName,
		Short:         "Robot fleet telemetry and pickup verification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(NewServeApp().Command(), newInspectCommand(), newSimulateCommand())
	return root
}

// NewServeApp builds the serve command. Options come from flags, an optional
// config file and ROBOFLEET_* environment variables.
func NewServeApp() *app.App {
	opts := options.NewFleetOptions()
	application := app.NewApp(
		commandName,
		"Run the fleet engine",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	application.Command().Use = "serve"
	return application
}

func run(opts *options.FleetOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewFleetServer()
		if err != nil {
			return fmt.Errorf("failed to create fleet server: %w", err)
		}

		return server.Run(ctx)
	}
}
