// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command cscvt converts CipherShed volumes between plaintext and ciphertext in place.
package main

import (
	"fmt"
	"os"
)

func main() {
	err := rootCmd.Execute()

	closeConsole()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
