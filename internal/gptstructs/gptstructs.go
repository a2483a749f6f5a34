// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gptstructs provides encoded definitions for GPT on-disk structures.
//
// All multi-byte integers are little-endian.
package gptstructs

import "encoding/binary"

// NumEntries is the number of entries in the GPT.
const NumEntries = 128

// Header layout.
//
//	offset  size
//	0       8     signature
//	8       4     revision
//	12      4     header_size
//	16      4     header_crc32
//	20      4     reserved
//	24      8     my_lba
//	32      8     alternate_lba
//	40      8     first_usable_lba
//	48      8     last_usable_lba
//	56      16    disk_guid
//	72      8     partition_entries_lba
//	80      4     num_partition_entries
//	84      4     sizeof_partition_entry
//	88      4     partition_entry_array_crc32
const HEADER_SIZE = 92 //nolint:revive,stylecheck

// Header is the encoded GPT header, at least HEADER_SIZE bytes long.
type Header []byte

// Get_signature returns signature.
func (h Header) Get_signature() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(h[0:8])
}

// Put_signature sets signature.
func (h Header) Put_signature(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(h[0:8], v)
}

// Get_revision returns revision.
func (h Header) Get_revision() uint32 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint32(h[8:12])
}

// Put_revision sets revision.
func (h Header) Put_revision(v uint32) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint32(h[8:12], v)
}

// Get_header_size returns header_size.
func (h Header) Get_header_size() uint32 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint32(h[12:16])
}

// Put_header_size sets header_size.
func (h Header) Put_header_size(v uint32) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint32(h[12:16], v)
}

// Get_header_crc32 returns header_crc32.
func (h Header) Get_header_crc32() uint32 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint32(h[16:20])
}

// Put_header_crc32 sets header_crc32.
func (h Header) Put_header_crc32(v uint32) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint32(h[16:20], v)
}

// Get_my_lba returns my_lba.
func (h Header) Get_my_lba() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(h[24:32])
}

// Put_my_lba sets my_lba.
func (h Header) Put_my_lba(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(h[24:32], v)
}

// Get_alternate_lba returns alternate_lba.
func (h Header) Get_alternate_lba() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(h[32:40])
}

// Put_alternate_lba sets alternate_lba.
func (h Header) Put_alternate_lba(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(h[32:40], v)
}

// Get_first_usable_lba returns first_usable_lba.
func (h Header) Get_first_usable_lba() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(h[40:48])
}

// Put_first_usable_lba sets first_usable_lba.
func (h Header) Put_first_usable_lba(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(h[40:48], v)
}

// Get_last_usable_lba returns last_usable_lba.
func (h Header) Get_last_usable_lba() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(h[48:56])
}

// Put_last_usable_lba sets last_usable_lba.
func (h Header) Put_last_usable_lba(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(h[48:56], v)
}

// Get_disk_guid returns disk_guid.
func (h Header) Get_disk_guid() []byte { //nolint:revive,stylecheck
	return h[56:72]
}

// Put_disk_guid sets disk_guid.
func (h Header) Put_disk_guid(v []byte) { //nolint:revive,stylecheck
	copy(h[56:72], v)
}

// Get_partition_entries_lba returns partition_entries_lba.
func (h Header) Get_partition_entries_lba() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(h[72:80])
}

// Put_partition_entries_lba sets partition_entries_lba.
func (h Header) Put_partition_entries_lba(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(h[72:80], v)
}

// Get_num_partition_entries returns num_partition_entries.
func (h Header) Get_num_partition_entries() uint32 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint32(h[80:84])
}

// Put_num_partition_entries sets num_partition_entries.
func (h Header) Put_num_partition_entries(v uint32) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint32(h[80:84], v)
}

// Get_sizeof_partition_entry returns sizeof_partition_entry.
func (h Header) Get_sizeof_partition_entry() uint32 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint32(h[84:88])
}

// Put_sizeof_partition_entry sets sizeof_partition_entry.
func (h Header) Put_sizeof_partition_entry(v uint32) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint32(h[84:88], v)
}

// Get_partition_entry_array_crc32 returns partition_entry_array_crc32.
func (h Header) Get_partition_entry_array_crc32() uint32 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint32(h[88:92])
}

// Put_partition_entry_array_crc32 sets partition_entry_array_crc32.
func (h Header) Put_partition_entry_array_crc32(v uint32) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint32(h[88:92], v)
}

// Entry layout.
//
//	offset  size
//	0       16    partition_type_guid
//	16      16    unique_partition_guid
//	32      8     starting_lba
//	40      8     ending_lba
//	48      8     attributes
//	56      72    partition_name (UTF-16LE)
const ENTRY_SIZE = 128 //nolint:revive,stylecheck

// Entry is the encoded GPT partition entry.
type Entry []byte

// Get_partition_type_guid returns partition_type_guid.
func (e Entry) Get_partition_type_guid() []byte { //nolint:revive,stylecheck
	return e[0:16]
}

// Put_partition_type_guid sets partition_type_guid.
func (e Entry) Put_partition_type_guid(v []byte) { //nolint:revive,stylecheck
	copy(e[0:16], v)
}

// Get_unique_partition_guid returns unique_partition_guid.
func (e Entry) Get_unique_partition_guid() []byte { //nolint:revive,stylecheck
	return e[16:32]
}

// Put_unique_partition_guid sets unique_partition_guid.
func (e Entry) Put_unique_partition_guid(v []byte) { //nolint:revive,stylecheck
	copy(e[16:32], v)
}

// Get_starting_lba returns starting_lba.
func (e Entry) Get_starting_lba() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(e[32:40])
}

// Put_starting_lba sets starting_lba.
func (e Entry) Put_starting_lba(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(e[32:40], v)
}

// Get_ending_lba returns ending_lba.
func (e Entry) Get_ending_lba() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(e[40:48])
}

// Put_ending_lba sets ending_lba.
func (e Entry) Put_ending_lba(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(e[40:48], v)
}

// Get_attributes returns attributes.
func (e Entry) Get_attributes() uint64 { //nolint:revive,stylecheck
	return binary.LittleEndian.Uint64(e[48:56])
}

// Put_attributes sets attributes.
func (e Entry) Put_attributes(v uint64) { //nolint:revive,stylecheck
	binary.LittleEndian.PutUint64(e[48:56], v)
}

// Get_partition_name returns partition_name.
func (e Entry) Get_partition_name() []byte { //nolint:revive,stylecheck
	return e[56:128]
}

// Put_partition_name sets partition_name.
func (e Entry) Put_partition_name(v []byte) { //nolint:revive,stylecheck
	clear(e[56:128])
	copy(e[56:128], v)
}
