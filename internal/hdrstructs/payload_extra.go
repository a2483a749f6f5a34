// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hdrstructs

import "bytes"

// Magic identifies a decrypted header payload.
var Magic = []byte("CSVH")

// Version is the current payload version.
const Version = 1

// Flags.
const (
	// FlagSystemEncryption marks a volume converted in place by the boot loader.
	FlagSystemEncryption = 1 << 0
)

// IsValid checks the payload magic and version.
func (p Payload) IsValid() bool {
	return len(p) == PAYLOAD_SIZE && bytes.Equal(p.Get_magic(), Magic) && p.Get_min_version() <= Version
}
