// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gptutil implements helper functions for GPT tables.
package gptutil

import "github.com/YodaRocker/CipherShed/firmware"

// LastLBA returns the last logical block address of the media.
func LastLBA(media *firmware.Media) (uint64, bool) {
	if !media.MediaPresent || media.BlockSize == 0 {
		return 0, false
	}

	return media.LastBlock, true
}

// GUIDToUUID converts a GPT GUID (mixed-endian) to a UUID.
func GUIDToUUID(g []byte) []byte {
	return append(
		[]byte{
			g[3], g[2], g[1], g[0],
			g[5], g[4],
			g[7], g[6],
			g[8], g[9],
		},
		g[10:16]...,
	)
}

// UUIDToGUID converts a UUID to a GPT GUID.
func UUIDToGUID(u []byte) []byte {
	return GUIDToUUID(u)
}
