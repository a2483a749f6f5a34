// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gpt implements read/write support for GPT partition tables on block devices.
package gpt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/siderolabs/gen/xslices"
	"golang.org/x/text/encoding/unicode"

	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/internal/gptstructs"
	"github.com/YodaRocker/CipherShed/internal/gptutil"
)

// ErrNoTable is returned by Read when neither GPT header is valid.
var ErrNoTable = errors.New("no GPT header found")

// Table is a wrapper type around GPT partition table.
type Table struct {
	dev firmware.BlockIO
	// partition entries are indexed with the partition number.
	//
	// if the partition is missing, its entry is `nil`.
	entries []*Partition

	lastLBA uint64

	primaryHeaderLBA, secondaryHeaderLBA         uint64
	primaryPartitionsLBA, secondaryPartitionsLBA uint64
	firstUsableLBA, lastUsableLBA                uint64

	diskGUID uuid.UUID

	options Options

	alignment uint64
	blockSize uint32
}

// Partition is a single partition entry in GPT.
type Partition struct {
	Name string

	TypeGUID uuid.UUID
	PartGUID uuid.UUID

	FirstLBA uint64
	LastLBA  uint64

	Flags uint64
}

// Blocks returns the partition length in blocks.
func (p *Partition) Blocks() uint64 {
	return p.LastLBA - p.FirstLBA + 1
}

func lastLBAOf(dev firmware.BlockIO) (uint64, error) {
	lastLBA, ok := gptutil.LastLBA(dev.Media())
	if !ok {
		return 0, errors.New("failed to calculate last LBA (no media?)")
	}

	if lastLBA < 2*(gptstructs.EntriesLBAs(dev.Media().BlockSize)+1)+1 {
		return 0, errors.New("device too small for GPT")
	}

	return lastLBA, nil
}

// New creates a new (empty) partition table for a specified device.
func New(dev firmware.BlockIO, opts ...Option) (*Table, error) {
	options := applyOptions(opts...)

	lastLBA, err := lastLBAOf(dev)
	if err != nil {
		return nil, err
	}

	diskGUID := options.DiskGUID
	if diskGUID == uuid.Nil {
		diskGUID = uuid.New()
	}

	t := &Table{
		dev:      dev,
		options:  options,
		diskGUID: diskGUID,
	}

	t.init(lastLBA)

	return t, nil
}

// Read reads the partition table from the device.
//
// The backup header is used if the primary one is damaged.
func Read(dev firmware.BlockIO, opts ...Option) (*Table, error) {
	options := applyOptions(opts...)

	lastLBA, err := lastLBAOf(dev)
	if err != nil {
		return nil, err
	}

	hdr, entries, err := gptstructs.ReadHeader(dev, 1, lastLBA)
	if err != nil {
		return nil, err
	}

	if hdr == nil {
		hdr, entries, err = gptstructs.ReadHeader(dev, lastLBA, lastLBA)
		if err != nil {
			return nil, err
		}
	}

	if hdr == nil {
		return nil, ErrNoTable
	}

	diskGUID, err := uuid.FromBytes(gptutil.GUIDToUUID(hdr.Get_disk_guid()))
	if err != nil {
		return nil, err
	}

	t := &Table{
		dev:      dev,
		options:  options,
		diskGUID: diskGUID,
	}

	t.init(lastLBA)

	partitions := make([]*Partition, len(entries))

	zeroGUID := make([]byte, 16)
	utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	lastFilledIdx := -1

	for idx, entry := range entries {
		if bytes.Equal(entry.Get_partition_type_guid(), zeroGUID) {
			continue
		}

		if entry.Get_starting_lba() < t.firstUsableLBA || entry.Get_ending_lba() > t.lastUsableLBA ||
			entry.Get_ending_lba() < entry.Get_starting_lba() {
			continue
		}

		partUUID, err := uuid.FromBytes(gptutil.GUIDToUUID(entry.Get_unique_partition_guid()))
		if err != nil {
			return nil, err
		}

		typeUUID, err := uuid.FromBytes(gptutil.GUIDToUUID(entry.Get_partition_type_guid()))
		if err != nil {
			return nil, err
		}

		name, err := utf16.NewDecoder().Bytes(entry.Get_partition_name())
		if err != nil {
			return nil, err
		}

		partitions[idx] = &Partition{
			Name: string(bytes.TrimRight(name, "\x00")),

			TypeGUID: typeUUID,
			PartGUID: partUUID,

			FirstLBA: entry.Get_starting_lba(),
			LastLBA:  entry.Get_ending_lba(),

			Flags: entry.Get_attributes(),
		}

		lastFilledIdx = idx
	}

	if lastFilledIdx >= 0 {
		t.entries = partitions[:lastFilledIdx+1]
	}

	return t, nil
}

func (t *Table) init(lastLBA uint64) {
	t.lastLBA = lastLBA
	t.blockSize = t.dev.Media().BlockSize

	lbasForEntries := gptstructs.EntriesLBAs(t.blockSize)

	t.primaryHeaderLBA = 1
	t.secondaryHeaderLBA = lastLBA

	t.primaryPartitionsLBA = t.primaryHeaderLBA + 1
	t.secondaryPartitionsLBA = t.secondaryHeaderLBA - lbasForEntries

	t.firstUsableLBA = t.primaryPartitionsLBA + lbasForEntries
	t.lastUsableLBA = t.secondaryPartitionsLBA - 1

	t.alignment = t.options.Alignment
	if t.alignment == 0 {
		t.alignment = max(DefaultAlignment/uint64(t.blockSize), 1)
	}
}

// DiskGUID returns the disk GUID.
func (t *Table) DiskGUID() uuid.UUID {
	return t.diskGUID
}

// UsableRange returns the first and the last block available to partitions.
func (t *Table) UsableRange() (first, last uint64) {
	return t.firstUsableLBA, t.lastUsableLBA
}

type allocatableRange struct {
	lowLBA  uint64
	highLBA uint64

	// index of the entry following the range
	partitionIdx int

	size uint64
}

// allocatableRanges returns the aligned LBA ranges that are not allocated to any partition.
func (t *Table) allocatableRanges() []allocatableRange {
	var ranges []allocatableRange

	lowLBA := t.firstUsableLBA

	for idx := 0; idx <= len(t.entries); idx++ {
		if idx < len(t.entries) && t.entries[idx] == nil {
			continue
		}

		highLBA := t.lastUsableLBA
		if idx < len(t.entries) {
			highLBA = t.entries[idx].FirstLBA - 1
		}

		alignedLBA := (lowLBA + t.alignment - 1) / t.alignment * t.alignment

		if highLBA >= alignedLBA {
			ranges = append(ranges, allocatableRange{
				lowLBA:       alignedLBA,
				highLBA:      highLBA,
				partitionIdx: idx,
				size:         (highLBA - alignedLBA + 1) * uint64(t.blockSize),
			})
		}

		if idx < len(t.entries) {
			lowLBA = t.entries[idx].LastLBA + 1
		}
	}

	return ranges
}

// LargestContiguousAllocatable returns the size of the largest contiguous allocatable range.
func (t *Table) LargestContiguousAllocatable() uint64 {
	var largest uint64

	for _, r := range t.allocatableRanges() {
		largest = max(largest, r.size)
	}

	return largest
}

// AllocatePartition adds a new partition to the table.
//
// The smallest free range which fits the partition is used.
// If successful, returns the partition number (1-indexed) and the partition entry created.
func (t *Table) AllocatePartition(size uint64, name string, partType uuid.UUID, opts ...PartitionOption) (int, Partition, error) {
	var options PartitionOptions

	for _, o := range opts {
		o(&options)
	}

	if size < uint64(t.blockSize) {
		return 0, Partition{}, errors.New("partition size must be greater than block size")
	}

	if options.UniqueGUID == uuid.Nil {
		options.UniqueGUID = uuid.New()
	}

	var smallestRange allocatableRange

	for _, r := range t.allocatableRanges() {
		if r.size >= size && (smallestRange.size == 0 || r.size < smallestRange.size) {
			smallestRange = r
		}
	}

	if smallestRange.size == 0 {
		return 0, Partition{}, errors.New("no allocatable range found")
	}

	entry := &Partition{
		Name:     name,
		TypeGUID: partType,
		PartGUID: options.UniqueGUID,
		FirstLBA: smallestRange.lowLBA,
		LastLBA:  smallestRange.lowLBA + size/uint64(t.blockSize) - 1,
		Flags:    options.Flags,
	}

	idx := smallestRange.partitionIdx

	if idx > 0 && t.entries[idx-1] == nil {
		idx--
		t.entries[idx] = entry
	} else {
		if len(t.entries) >= gptstructs.NumEntries {
			return 0, Partition{}, errors.New("partition table is full")
		}

		t.entries = slices.Insert(t.entries, idx, entry)
	}

	return idx + 1, *entry, nil
}

// DeletePartition deletes a partition (0-indexed) from the table.
func (t *Table) DeletePartition(partition int) error {
	if partition < 0 || partition >= len(t.entries) {
		return fmt.Errorf("partition %d out of range", partition)
	}

	t.entries[partition] = nil

	return nil
}

// Partitions returns the list of partitions in the table.
//
// The returned list should not be modified.
// Missing partitions are nil.
func (t *Table) Partitions() []*Partition {
	return slices.Clone(t.entries)
}

// FindByType returns the first partition of the given type and its number (1-indexed).
func (t *Table) FindByType(partType uuid.UUID) (int, *Partition, bool) {
	for idx, entry := range t.entries {
		if entry != nil && entry.TypeGUID == partType {
			return idx + 1, entry, true
		}
	}

	return 0, nil, false
}

// Count returns the number of allocated partitions.
func (t *Table) Count() int {
	return len(xslices.Filter(t.entries, func(e *Partition) bool {
		return e != nil
	}))
}

// Write writes the partition table to the device.
func (t *Table) Write() error {
	media := t.dev.Media()

	entriesLen := gptstructs.ENTRY_SIZE * gptstructs.NumEntries
	entriesBuf := make([]byte, gptstructs.EntriesLBAs(t.blockSize)*uint64(t.blockSize))

	utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	for i, entry := range t.entries {
		if entry == nil {
			continue
		}

		entryBuf := gptstructs.Entry(entriesBuf[i*gptstructs.ENTRY_SIZE : (i+1)*gptstructs.ENTRY_SIZE])
		entryBuf.Put_partition_type_guid(gptutil.UUIDToGUID(entry.TypeGUID[:]))
		entryBuf.Put_unique_partition_guid(gptutil.UUIDToGUID(entry.PartGUID[:]))
		entryBuf.Put_starting_lba(entry.FirstLBA)
		entryBuf.Put_ending_lba(entry.LastLBA)
		entryBuf.Put_attributes(entry.Flags)

		nameBuf, err := utf16.NewEncoder().Bytes([]byte(entry.Name))
		if err != nil {
			return fmt.Errorf("failed to encode partition name: %w", err)
		}

		if len(nameBuf) > 72 {
			return fmt.Errorf("partition name %q too long: %d bytes", entry.Name, len(nameBuf))
		}

		entryBuf.Put_partition_name(nameBuf)
	}

	entriesChecksum := crc32.ChecksumIEEE(entriesBuf[:entriesLen])

	// GPT header should occupy whole block
	header := gptstructs.Header(make([]byte, t.blockSize))
	header.Put_signature(gptstructs.HeaderSignature)
	header.Put_revision(0x00010000)
	header.Put_header_size(gptstructs.HEADER_SIZE)
	header.Put_first_usable_lba(t.firstUsableLBA)
	header.Put_last_usable_lba(t.lastUsableLBA)
	header.Put_disk_guid(gptutil.UUIDToGUID(t.diskGUID[:]))
	header.Put_num_partition_entries(gptstructs.NumEntries)
	header.Put_sizeof_partition_entry(gptstructs.ENTRY_SIZE)
	header.Put_partition_entry_array_crc32(entriesChecksum)

	primaryHeader := slices.Clone(header)
	primaryHeader.Put_my_lba(t.primaryHeaderLBA)
	primaryHeader.Put_alternate_lba(t.secondaryHeaderLBA)
	primaryHeader.Put_partition_entries_lba(t.primaryPartitionsLBA)
	primaryHeader.Put_header_crc32(primaryHeader.CalculateChecksum())

	if err := t.dev.WriteBlocks(media.MediaID, t.primaryHeaderLBA, primaryHeader); err != nil {
		return fmt.Errorf("failed to write primary header: %w", err)
	}

	if err := t.dev.WriteBlocks(media.MediaID, t.primaryPartitionsLBA, entriesBuf); err != nil {
		return fmt.Errorf("failed to write primary entries: %w", err)
	}

	secondaryHeader := slices.Clone(header)
	secondaryHeader.Put_my_lba(t.secondaryHeaderLBA)
	secondaryHeader.Put_alternate_lba(t.primaryHeaderLBA)
	secondaryHeader.Put_partition_entries_lba(t.secondaryPartitionsLBA)
	secondaryHeader.Put_header_crc32(secondaryHeader.CalculateChecksum())

	if err := t.dev.WriteBlocks(media.MediaID, t.secondaryHeaderLBA, secondaryHeader); err != nil {
		return fmt.Errorf("failed to write secondary header: %w", err)
	}

	if err := t.dev.WriteBlocks(media.MediaID, t.secondaryPartitionsLBA, entriesBuf); err != nil {
		return fmt.Errorf("failed to write secondary entries: %w", err)
	}

	if !t.options.SkipPMBR {
		if err := t.writePMBR(); err != nil {
			return err
		}
	}

	if err := t.dev.FlushBlocks(); err != nil {
		return fmt.Errorf("failed to flush device: %w", err)
	}

	return nil
}

func (t *Table) writePMBR() error {
	media := t.dev.Media()
	block := make([]byte, t.blockSize)

	if err := t.dev.ReadBlocks(media.MediaID, 0, block); err != nil {
		return fmt.Errorf("failed to read protective MBR: %w", err)
	}

	protectiveMBR := block[:512]

	// boot signature
	protectiveMBR[510], protectiveMBR[511] = 0x55, 0xAA

	// PMBR protective entry.
	b := protectiveMBR[446 : 446+16]

	if t.options.MarkPMBRBootable {
		// Some BIOSes in legacy mode won't boot from a disk unless there is at least one
		// partition in the MBR marked bootable.
		b[0] = 0x80
	} else {
		b[0] = 0x00
	}

	// Partition type: EFI data partition.
	b[4] = 0xee

	// CHS for the start of the partition
	copy(b[1:4], []byte{0x00, 0x02, 0x00})

	// CHS for the end of the partition
	copy(b[5:8], []byte{0xff, 0xff, 0xff})

	// Partition start LBA.
	binary.LittleEndian.PutUint32(b[8:12], 1)

	// Partition length in sectors, capped to uint32.
	binary.LittleEndian.PutUint32(b[12:16], uint32(min(t.lastLBA, math.MaxUint32)))

	if err := t.dev.WriteBlocks(media.MediaID, 0, block); err != nil {
		return fmt.Errorf("failed to write protective MBR: %w", err)
	}

	return nil
}
