// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"os"
	"sync"

	"github.com/YodaRocker/CipherShed/console"
)

// stdin is consumed by a single terminal for the lifetime of the process.
var (
	terminalOnce sync.Once
	terminal     *console.Terminal
	terminalErr  error
)

func newConsole() (*console.Terminal, error) {
	terminalOnce.Do(func() {
		terminal, terminalErr = console.New(os.Stdin, os.Stdout,
			console.WithLogger(logger.Named("console")),
			console.WithSilent(cfg.Silent),
			console.WithPasswordAsterisk(cfg.PasswordAsterisk),
		)
	})

	return terminal, terminalErr
}

func closeConsole() {
	if terminal != nil {
		terminal.Close() //nolint:errcheck
	}
}
