package replay

import (
	"context"

	log "github.com/rs/zerolog"

	"github.com/cong-or/hud/pkg/cmd/options"
)

type Options struct {
	path string

	*options.CommonOptions
}

type Option func(o *Options)

func NewOptions(opts ...Option) *Options {
	o := &Options{CommonOptions: new(options.CommonOptions)}
	for _, f := range opts {
		f(o)
	}
	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *Options) { o.Ctx = ctx }
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
