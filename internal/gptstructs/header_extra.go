// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptstructs

import (
	"hash/crc32"
	"slices"

	"github.com/YodaRocker/CipherShed/firmware"
)

// HeaderSignature is the signature of the GPT header.
const HeaderSignature = 0x5452415020494645 // "EFI PART"

// CalculateChecksum calculates the checksum of the header.
func (h Header) CalculateChecksum() uint32 {
	b := slices.Clone(h[:HEADER_SIZE])

	clear(b[16:20])

	return crc32.ChecksumIEEE(b)
}

// EntriesLBAs returns the number of blocks holding the partition entry array.
func EntriesLBAs(blockSize uint32) uint64 {
	return (ENTRY_SIZE*NumEntries + uint64(blockSize) - 1) / uint64(blockSize)
}

// ReadHeader reads the GPT header at lba and its partition entries.
//
// It does sanity checks on the header and partition entries, returning nil header
// if any of them fails.
func ReadHeader(dev firmware.BlockIO, lba, lastLBA uint64) (*Header, []Entry, error) {
	media := dev.Media()
	buf := make([]byte, media.BlockSize)

	if err := dev.ReadBlocks(media.MediaID, lba, buf); err != nil {
		return nil, nil, err
	}

	hdr := Header(buf)

	if len(hdr) < HEADER_SIZE || hdr.Get_signature() != HeaderSignature {
		return nil, nil, nil
	}

	headerSize := hdr.Get_header_size()
	if headerSize < HEADER_SIZE || headerSize > media.BlockSize {
		return nil, nil, nil
	}

	if hdr.Get_header_crc32() != hdr.CalculateChecksum() {
		return nil, nil, nil
	}

	if hdr.Get_my_lba() != lba {
		return nil, nil, nil
	}

	firstUsableLBA := hdr.Get_first_usable_lba()
	lastUsableLBA := hdr.Get_last_usable_lba()

	if lastUsableLBA < firstUsableLBA || firstUsableLBA > lastLBA || lastUsableLBA > lastLBA {
		return nil, nil, nil
	}

	// header should be outside the usable range
	if firstUsableLBA <= lba && lba <= lastUsableLBA {
		return nil, nil, nil
	}

	if hdr.Get_sizeof_partition_entry() != ENTRY_SIZE {
		return nil, nil, nil
	}

	numEntries := hdr.Get_num_partition_entries()
	if numEntries == 0 || numEntries > NumEntries {
		return nil, nil, nil
	}

	entriesLBA := hdr.Get_partition_entries_lba()
	entriesLen := uint64(numEntries) * ENTRY_SIZE
	lbas := (entriesLen + uint64(media.BlockSize) - 1) / uint64(media.BlockSize)

	if entriesLBA > lastLBA || lbas > lastLBA-entriesLBA+1 {
		return nil, nil, nil
	}

	entriesBuffer := make([]byte, lbas*uint64(media.BlockSize))

	if err := dev.ReadBlocks(media.MediaID, entriesLBA, entriesBuffer); err != nil {
		return nil, nil, err
	}

	entriesBuffer = entriesBuffer[:entriesLen]

	if crc32.ChecksumIEEE(entriesBuffer) != hdr.Get_partition_entry_array_crc32() {
		return nil, nil, nil
	}

	entries := make([]Entry, numEntries)
	for i := range entries {
		entries[i] = Entry(entriesBuffer[i*ENTRY_SIZE : (i+1)*ENTRY_SIZE])
	}

	return &hdr, entries, nil
}
