// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package header

import "go.uber.org/zap"

// DefaultIterations is the default number of PBKDF2 iterations.
const DefaultIterations = 500_000

// Options configures the header store.
type Options struct {
	Logger *zap.Logger

	// Iterations of PBKDF2-HMAC-SHA512.
	Iterations int

	// HeaderLBA is the disk sector holding the header.
	HeaderLBA uint64
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithIterations sets the number of key derivation iterations.
func WithIterations(iterations int) Option {
	return func(o *Options) {
		o.Iterations = iterations
	}
}

// WithHeaderLBA sets the sector holding the header.
func WithHeaderLBA(lba uint64) Option {
	return func(o *Options) {
		o.HeaderLBA = lba
	}
}
