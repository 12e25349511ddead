package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SmtpOptions)(nil)

// SmtpOptions configures outbound mail. An empty Addr logs mails instead of sending them.
type SmtpOptions struct {
	Addr     string        `json:"addr" mapstructure:"addr"`
	Username string        `json:"username" mapstructure:"username"`
	Password string        `json:"password" mapstructure:"password"`
	From     string        `json:"from" mapstructure:"from"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewSmtpOptions() *SmtpOptions {
	return &SmtpOptions{
		From:    "no-reply@robofleet.local",
		Timeout: 10 * time.Second,
	}
}

func (o *SmtpOptions) Validate() []error {
	if o.Addr == "" {
		return nil
	}
	errs := []error{}
	if err := ValidateAddress(o.Addr); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (o *SmtpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "smtp.addr", o.Addr, "SMTP server host:port. Empty logs mails instead of sending.")
	fs.StringVar(&o.Username, "smtp.username", o.Username, "SMTP username.")
	fs.StringVar(&o.Password, "smtp.password", o.Password, "SMTP password.")
	fs.StringVar(&o.From, "smtp.from", o.From, "Sender address.")
	fs.DurationVar(&o.Timeout, "smtp.timeout", o.Timeout, "Bound on a single mail delivery.")
}
