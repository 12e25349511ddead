package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PickupOptions)(nil)

// PickupOptions tunes one-time pickup codes.
type PickupOptions struct {
	CodeTTL         time.Duration `json:"code-ttl" mapstructure:"code-ttl"`
	ResendWindow    time.Duration `json:"resend-window" mapstructure:"resend-window"`
	ResendLimit     int           `json:"resend-limit" mapstructure:"resend-limit"`
	CleanupInterval time.Duration `json:"cleanup-interval" mapstructure:"cleanup-interval"`
	MailSubject     string        `json:"mail-subject" mapstructure:"mail-subject"`
}

func NewPickupOptions() *PickupOptions {
	return &PickupOptions{
		CodeTTL:         10 * time.Minute,
		ResendWindow:    2 * time.Minute,
		ResendLimit:     3,
		CleanupInterval: time.Minute,
		MailSubject:     "Your pickup code",
	}
}

func (o *PickupOptions) Validate() []error {
	errs := []error{}
	if o.CodeTTL <= 0 || o.ResendWindow <= 0 || o.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("--pickup durations must be positive"))
	}
	if o.ResendLimit < 1 {
		errs = append(errs, fmt.Errorf("--pickup.resend-limit must be at least 1"))
	}
	return errs
}

func (o *PickupOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.CodeTTL, "pickup.code-ttl", o.CodeTTL, "Lifetime of a pickup code.")
	fs.DurationVar(&o.ResendWindow, "pickup.resend-window", o.ResendWindow, "Rolling window for the resend limit.")
	fs.IntVar(&o.ResendLimit, "pickup.resend-limit", o.ResendLimit, "Maximum code deliveries per order/trip within the window.")
	fs.DurationVar(&o.CleanupInterval, "pickup.cleanup-interval", o.CleanupInterval, "Interval of the expired-code cleanup.")
	fs.StringVar(&o.MailSubject, "pickup.mail-subject", o.MailSubject, "Subject line of the pickup code email.")
}
