package app

import (
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/robofleet/pkg/log"
)

// NamedFlagSetOptions is implemented by the top-level options of a command.
type NamedFlagSetOptions interface {
	// Flags returns flags grouped by section name.
	Flags() cliflag.NamedFlagSets

	// Complete fills in values derived from other fields.
	Complete() error

	// Validate returns an aggregate of every invalid field.
	Validate() error
}

// LogOptioner is implemented by options that carry a log section.
// The app initializes the global logger from it before running.
type LogOptioner interface {
	LogOptions() *log.Options
}
