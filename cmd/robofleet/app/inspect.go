package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/fleet/storage/s3"
	"github.com/autopeer-io/robofleet/internal/fleet/storage/sqlite"
	"github.com/autopeer-io/robofleet/pkg/options"
)

const inspectTimeout = 30 * time.Second

type inspectOptions struct {
	store *options.StoreOptions
	s3    *options.S3Options
}

func newInspectCommand() *cobra.Command {
	o := &inspectOptions{
		store: options.NewStoreOptions(),
		s3:    options.NewS3Options(),
	}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print durable fleet rows",
	}
	o.store.AddFlags(cmd.PersistentFlags())
	o.s3.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		&cobra.Command{
			Use:   "robots",
			Short: "List robot rows from the telemetry backend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
					robots, err := o.robotRepository(store)
					if err != nil {
						return err
					}
					list, err := robots.List(ctx)
					if err != nil {
						return err
					}
					printRobots(cmd.OutOrStdout(), list)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "otps",
			Short: "List pickup codes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
					list, err := store.PickupOtp().List(ctx)
					if err != nil {
						return err
					}
					printOtps(cmd.OutOrStdout(), list, time.Now())
					return nil
				})
			},
		},
	)
	return cmd
}

func (o *inspectOptions) withStore(cmd *cobra.Command, fn func(context.Context, *sqlite.Store) error) error {
	if errs := o.store.Validate(); len(errs) > 0 {
		return errs[0]
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeout)
	defer cancel()

	store, err := sqlite.Open(o.store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	return fn(ctx, store)
}

func (o *inspectOptions) robotRepository(store *sqlite.Store) (core.RobotRepository, error) {
	if o.store.TelemetryBackend != options.TelemetryBackendS3 {
		return store.Robot(), nil
	}
	bucket, err := s3.New(o.s3)
	if err != nil {
		return nil, err
	}
	return bucket.Robot(), nil
}

func printRobots(w io.Writer, robots []*model.Robot) {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("CODE", "ONLINE", "STATUS", "BATTERY", "LAT", "LON", "ROOM", "LAST SEEN")
	for _, r := range robots {
		table.AddRow(r.Code, r.Online, r.Status, fmt.Sprintf("%.0f%%", r.Battery),
			r.Lat, r.Lon, r.RoomCode, formatTime(r.LastSeenAt))
	}
	fmt.Fprintln(w, table)
}

func printOtps(w io.Writer, otps []*model.PickupOtp, now time.Time) {
	table := uitable.New()
	table.AddRow("ORDER", "TRIP", "EMAIL", "CREATED", "EXPIRES", "STATE")
	for _, p := range otps {
		state := "active"
		switch {
		case p.Verified:
			state = "verified"
		case p.Expired(now):
			state = "expired"
		}
		table.AddRow(p.OrderCode, p.TripCode, p.Email, formatTime(p.CreatedAt), formatTime(p.ExpiresAt), state)
	}
	fmt.Fprintln(w, table)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
