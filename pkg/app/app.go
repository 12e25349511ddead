package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/robofleet/pkg/log"
)

const (
	flagConfig = "config"

	usageColumns = 100
)

// RunFunc is invoked once options are loaded, completed and validated.
type RunFunc func() error

// App is a cobra command wired to viper: flags, a config file and
// environment variables all fill the same options tree.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	subCommands []*cobra.Command
	onReload    func(v *viper.Viper)

	v   *viper.Viper
	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithSubCommands attaches extra commands under the root.
func WithSubCommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.subCommands = append(a.subCommands, cmds...) }
}

// WithConfigReload registers a hook run after the config file changes on disk.
func WithConfigReload(fn func(v *viper.Viper)) Option {
	return func(a *App) { a.onReload = fn }
}

// NewApp builds the application and its root command.
func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		v:         viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command exposes the root cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
		fs := cmd.Flags()
		for _, f := range namedFlagSets.FlagSets {
			fs.AddFlagSet(f)
		}
	}
	cmd.PersistentFlags().StringP(flagConfig, "c", "", "Read configuration from the specified file (yaml, json or toml).")
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, usageColumns)

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}
	cmd.AddCommand(a.subCommands...)
	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if err := a.loadConfig(cmd); err != nil {
		return err
	}

	if a.options != nil {
		if err := a.v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode options: %w", err)
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
		if lo, ok := a.options.(LogOptioner); ok {
			log.Init(lo.LogOptions())
		}
	}

	log.Info("Starting "+a.name, "config", a.v.ConfigFileUsed())
	a.watchConfig()

	return a.runFunc()
}

func (a *App) loadConfig(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(a.name, "-", "_")))
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	file, _ := cmd.Flags().GetString(flagConfig)
	if file == "" {
		return nil
	}
	a.v.SetConfigFile(file)
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", file, err)
	}
	return nil
}

// watchConfig reloads the log level, and any registered hook, when the
// config file is edited in place.
func (a *App) watchConfig() {
	if a.v.ConfigFileUsed() == "" {
		return
	}
	a.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log.Info("Config file changed", "file", e.Name, "op", e.Op.String())
		if lvl := a.v.GetString("log.level"); lvl != "" {
			log.SetLevel(lvl)
		}
		if a.onReload != nil {
			a.onReload(a.v)
		}
	})
	a.v.WatchConfig()
}
