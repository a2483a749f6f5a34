// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptutil_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/internal/gptutil"
)

func TestGUIDToUUID(t *testing.T) {
	u := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}

	guid := []byte{0x67, 0x45, 0x23, 0x01, 0xab, 0x89, 0xef, 0xcd, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}

	assert.Equal(t, u, gptutil.GUIDToUUID(guid))
	assert.Equal(t, guid, gptutil.UUIDToGUID(u))
	assert.Equal(t, u, gptutil.GUIDToUUID(gptutil.UUIDToGUID(u)))

	// EFI system partition, as stored on disk
	esp := uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	assert.Equal(t,
		[]byte{0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11, 0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b},
		gptutil.UUIDToGUID(esp[:]),
	)
}

func TestLastLBA(t *testing.T) {
	lastLBA, ok := gptutil.LastLBA(&firmware.Media{BlockSize: 512, LastBlock: 2047, MediaPresent: true})
	assert.True(t, ok)
	assert.EqualValues(t, 2047, lastLBA)

	_, ok = gptutil.LastLBA(&firmware.Media{BlockSize: 512, LastBlock: 2047})
	assert.False(t, ok)
}
