// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package hdrstructs provides encoded definitions for the volume header on-disk structures.
//
// All multi-byte integers are big-endian.
package hdrstructs

import "encoding/binary"

// Sector layout.
//
//	offset  size
//	0       32    salt (plaintext)
//	32      24    nonce (plaintext)
//	56      136   sealed payload (PAYLOAD_SIZE + tag)
const (
	SECTOR_SIZE = 512 //nolint:revive,stylecheck

	SALT_SIZE   = 32                      //nolint:revive,stylecheck
	NONCE_SIZE  = 24                      //nolint:revive,stylecheck
	TAG_SIZE    = 16                      //nolint:revive,stylecheck
	SEALED_SIZE = PAYLOAD_SIZE + TAG_SIZE //nolint:revive,stylecheck

	saltOffset   = 0
	nonceOffset  = saltOffset + SALT_SIZE
	sealedOffset = nonceOffset + NONCE_SIZE
)

// Sector is the encoded header sector.
type Sector []byte

// Get_salt returns salt.
func (s Sector) Get_salt() []byte { //nolint:revive,stylecheck
	return s[saltOffset : saltOffset+SALT_SIZE]
}

// Put_salt sets salt.
func (s Sector) Put_salt(v []byte) { //nolint:revive,stylecheck
	copy(s[saltOffset:saltOffset+SALT_SIZE], v)
}

// Get_nonce returns nonce.
func (s Sector) Get_nonce() []byte { //nolint:revive,stylecheck
	return s[nonceOffset : nonceOffset+NONCE_SIZE]
}

// Put_nonce sets nonce.
func (s Sector) Put_nonce(v []byte) { //nolint:revive,stylecheck
	copy(s[nonceOffset:nonceOffset+NONCE_SIZE], v)
}

// Get_sealed returns sealed payload.
func (s Sector) Get_sealed() []byte { //nolint:revive,stylecheck
	return s[sealedOffset : sealedOffset+SEALED_SIZE]
}

// Put_sealed sets sealed payload.
func (s Sector) Put_sealed(v []byte) { //nolint:revive,stylecheck
	copy(s[sealedOffset:sealedOffset+SEALED_SIZE], v)
}

// Payload layout.
//
//	offset  size
//	0       4     magic
//	4       2     version
//	6       2     min_version
//	8       8     volume_size
//	16      8     encrypted_area_start
//	24      8     encrypted_area_length
//	32      4     sector_size
//	36      4     flags
//	40      16    volume_uuid
//	56      64    master_key
const (
	PAYLOAD_SIZE    = 120 //nolint:revive,stylecheck
	MASTER_KEY_SIZE = 64  //nolint:revive,stylecheck
)

// Payload is the decrypted header payload.
type Payload []byte

// Get_magic returns magic.
func (p Payload) Get_magic() []byte { //nolint:revive,stylecheck
	return p[0:4]
}

// Put_magic sets magic.
func (p Payload) Put_magic(v []byte) { //nolint:revive,stylecheck
	copy(p[0:4], v)
}

// Get_version returns version.
func (p Payload) Get_version() uint16 { //nolint:revive,stylecheck
	return binary.BigEndian.Uint16(p[4:6])
}

// Put_version sets version.
func (p Payload) Put_version(v uint16) { //nolint:revive,stylecheck
	binary.BigEndian.PutUint16(p[4:6], v)
}

// Get_min_version returns min_version.
func (p Payload) Get_min_version() uint16 { //nolint:revive,stylecheck
	return binary.BigEndian.Uint16(p[6:8])
}

// Put_min_version sets min_version.
func (p Payload) Put_min_version(v uint16) { //nolint:revive,stylecheck
	binary.BigEndian.PutUint16(p[6:8], v)
}

// Get_volume_size returns volume_size.
func (p Payload) Get_volume_size() uint64 { //nolint:revive,stylecheck
	return binary.BigEndian.Uint64(p[8:16])
}

// Put_volume_size sets volume_size.
func (p Payload) Put_volume_size(v uint64) { //nolint:revive,stylecheck
	binary.BigEndian.PutUint64(p[8:16], v)
}

// Get_encrypted_area_start returns encrypted_area_start.
func (p Payload) Get_encrypted_area_start() uint64 { //nolint:revive,stylecheck
	return binary.BigEndian.Uint64(p[16:24])
}

// Put_encrypted_area_start sets encrypted_area_start.
func (p Payload) Put_encrypted_area_start(v uint64) { //nolint:revive,stylecheck
	binary.BigEndian.PutUint64(p[16:24], v)
}

// Get_encrypted_area_length returns encrypted_area_length.
func (p Payload) Get_encrypted_area_length() uint64 { //nolint:revive,stylecheck
	return binary.BigEndian.Uint64(p[24:32])
}

// Put_encrypted_area_length sets encrypted_area_length.
func (p Payload) Put_encrypted_area_length(v uint64) { //nolint:revive,stylecheck
	binary.BigEndian.PutUint64(p[24:32], v)
}

// Get_sector_size returns sector_size.
func (p Payload) Get_sector_size() uint32 { //nolint:revive,stylecheck
	return binary.BigEndian.Uint32(p[32:36])
}

// Put_sector_size sets sector_size.
func (p Payload) Put_sector_size(v uint32) { //nolint:revive,stylecheck
	binary.BigEndian.PutUint32(p[32:36], v)
}

// Get_flags returns flags.
func (p Payload) Get_flags() uint32 { //nolint:revive,stylecheck
	return binary.BigEndian.Uint32(p[36:40])
}

// Put_flags sets flags.
func (p Payload) Put_flags(v uint32) { //nolint:revive,stylecheck
	binary.BigEndian.PutUint32(p[36:40], v)
}

// Get_volume_uuid returns volume_uuid.
func (p Payload) Get_volume_uuid() []byte { //nolint:revive,stylecheck
	return p[40:56]
}

// Put_volume_uuid sets volume_uuid.
func (p Payload) Put_volume_uuid(v []byte) { //nolint:revive,stylecheck
	copy(p[40:56], v)
}

// Get_master_key returns master_key.
func (p Payload) Get_master_key() []byte { //nolint:revive,stylecheck
	return p[56 : 56+MASTER_KEY_SIZE]
}

// Put_master_key sets master_key.
func (p Payload) Put_master_key(v []byte) { //nolint:revive,stylecheck
	copy(p[56:56+MASTER_KEY_SIZE], v)
}
