// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert

import "go.uber.org/zap"

// DefaultBufferSectors is the default transfer buffer size in sectors.
const DefaultBufferSectors = 80

// Options configures the conversion.
type Options struct {
	Logger *zap.Logger

	// BufferSectors is the transfer buffer capacity in sectors.
	BufferSectors uint64

	// Silent suppresses the line feeds around the progress output.
	Silent bool
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithBufferSectors sets the transfer buffer size.
//
// Zero keeps the default.
func WithBufferSectors(sectors uint64) Option {
	return func(o *Options) {
		if sectors > 0 {
			o.BufferSectors = sectors
		}
	}
}

// WithSilent enables silent mode.
func WithSilent(silent bool) Option {
	return func(o *Options) {
		o.Silent = silent
	}
}

func applyOptions(opts ...Option) Options {
	options := Options{
		Logger:        zap.NewNop(),
		BufferSectors: DefaultBufferSectors,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return options
}
