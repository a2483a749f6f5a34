// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package volume holds the persisted conversion progress of an encrypted volume.
package volume

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrVolumeCorrupted = errors.New("inconsistent volume information")
	ErrPersistFailed   = errors.New("failed to persist volume header")
	ErrWrongPassword   = errors.New("wrong password or no volume header")
)

// Direction of a conversion run.
type Direction int

// Conversion directions.
const (
	Encrypt Direction = iota
	Decrypt
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Encrypt:
		return "encrypt"
	case Decrypt:
		return "decrypt"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection converts a string into Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "encrypt":
		return Encrypt, nil
	case "decrypt":
		return Decrypt, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Header is the conversion state stored in the volume header.
//
// All values are in bytes. EncryptedAreaStart is relative to the whole disk,
// the encrypted area always begins at the start of the volume.
type Header struct {
	EncryptedAreaStart  uint64
	EncryptedAreaLength uint64
	VolumeSize          uint64
}

// Validate checks 0 <= EncryptedAreaLength <= VolumeSize.
func (h *Header) Validate() error {
	if h.EncryptedAreaLength > h.VolumeSize {
		return fmt.Errorf("%w: encrypted length %d exceeds volume size %d", ErrVolumeCorrupted, h.EncryptedAreaLength, h.VolumeSize)
	}

	return nil
}

// StartSector returns the disk-relative first sector of the volume.
func (h *Header) StartSector(sectorSize uint32) uint64 {
	return h.EncryptedAreaStart / uint64(sectorSize)
}

// EncryptedSectors returns the number of sectors already encrypted.
func (h *Header) EncryptedSectors(sectorSize uint32) uint64 {
	return h.EncryptedAreaLength / uint64(sectorSize)
}

// VolumeSectors returns the number of sectors in the volume.
func (h *Header) VolumeSectors(sectorSize uint32) uint64 {
	return h.VolumeSize / uint64(sectorSize)
}

// IsFullyEncrypted returns true if the whole volume is encrypted.
func (h *Header) IsFullyEncrypted() bool {
	return h.VolumeSize > 0 && h.EncryptedAreaLength == h.VolumeSize
}
