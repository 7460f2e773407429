// Package options defines the fields every hud subcommand shares: a
// cancellation context and a configured logger, both set once by the root
// command's PersistentPreRunE and threaded down through each leaf's own
// Options struct.
package options

import (
	"context"

	log "github.com/rs/zerolog"
)

type CommonOptions struct {
	Ctx      context.Context
	Logger   log.Logger
	LogLevel string
	Verbose  bool
}

type Option func(o *CommonOptions)

func NewCommonOptions(opts ...Option) *CommonOptions {
	o := &CommonOptions{Ctx: context.Background()}
	for _, f := range opts {
		f(o)
	}
	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) { o.Ctx = ctx }
}

func WithLogger(logger log.Logger) Option {
	return func(o *CommonOptions) { o.Logger = logger }
}

func WithLogLevel(level string) Option {
	return func(o *CommonOptions) { o.LogLevel = level }
}

func WithVerbose(verbose bool) Option {
	return func(o *CommonOptions) { o.Verbose = verbose }
}

// ParseLevel maps the --log-level flag to a zerolog level, defaulting to
// Info on an empty or unrecognized value rather than failing the command.
func ParseLevel(level string) log.Level {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}
