// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert

import (
	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/volume"
)

// sweep moves the boundary between the encrypted and the plaintext part of the volume.
//
// All positions are volume-relative sectors.
type sweep interface {
	// next returns the position of the next chunk of at most limit sectors.
	next(limit uint64) (lba, count uint64)
	// advance records count sectors of the last chunk as converted.
	advance(count uint64)
	remaining() uint64
	boundary() uint64
	// progress returns the operation progress in per-mille.
	progress(total uint64) int
}

// forwardSweep encrypts from the boundary towards the end of the volume.
type forwardSweep struct {
	cursor, left uint64
}

func (s *forwardSweep) next(limit uint64) (uint64, uint64) {
	return s.cursor, min(limit, s.left)
}

func (s *forwardSweep) advance(count uint64) {
	s.cursor += count
	s.left -= count
}

func (s *forwardSweep) remaining() uint64 { return s.left }
func (s *forwardSweep) boundary() uint64  { return s.cursor }

func (s *forwardSweep) progress(total uint64) int {
	return int(s.cursor * 1000 / total)
}

// backwardSweep decrypts from the boundary towards the start of the volume.
//
// Each chunk ends at the boundary, so the boundary only ever covers ciphertext.
type backwardSweep struct {
	cursor, left uint64
}

func (s *backwardSweep) next(limit uint64) (uint64, uint64) {
	count := min(limit, s.left)

	return s.cursor - count, count
}

func (s *backwardSweep) advance(count uint64) {
	s.cursor -= count
	s.left -= count
}

func (s *backwardSweep) remaining() uint64 { return s.left }
func (s *backwardSweep) boundary() uint64  { return s.cursor }

func (s *backwardSweep) progress(total uint64) int {
	return 1000 - int(s.cursor*1000/total)
}

// newSweep selects the sweep policy and the copy direction for dir.
//
// Encryption reads the filter view and writes the raw device, decryption the other way round.
func newSweep(dir volume.Direction, session *Session, encrypted, total uint64) (sw sweep, src, dst firmware.BlockIO) {
	switch dir {
	case volume.Decrypt:
		return &backwardSweep{cursor: encrypted, left: encrypted}, session.Parent, session.Child
	default:
		return &forwardSweep{cursor: encrypted, left: total - encrypted}, session.Child, session.Parent
	}
}
