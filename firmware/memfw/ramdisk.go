// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package memfw

import (
	"sync"

	"github.com/YodaRocker/CipherShed/firmware"
)

// RAMDisk is an in-memory firmware.BlockIO.
type RAMDisk struct {
	mu sync.Mutex

	media firmware.Media
	data  []byte

	// FailReadAt makes ReadBlocks fail with ErrDeviceError for transfers covering the LBA.
	FailReadAt *uint64
	// FailWriteAt makes WriteBlocks fail with ErrDeviceError for transfers covering the LBA.
	FailWriteAt *uint64

	reads, writes int
}

var _ firmware.BlockIO = (*RAMDisk)(nil)

// NewRAMDisk creates a zero-filled disk of blocks sectors of blockSize bytes.
func NewRAMDisk(mediaID, blockSize uint32, blocks uint64) *RAMDisk {
	return &RAMDisk{
		media: firmware.Media{
			MediaID:      mediaID,
			BlockSize:    blockSize,
			LastBlock:    blocks - 1,
			MediaPresent: blocks > 0,
		},
		data: make([]byte, uint64(blockSize)*blocks),
	}
}

// Media implements firmware.BlockIO.
func (d *RAMDisk) Media() *firmware.Media {
	return &d.media
}

func covers(fail *uint64, lba, blocks uint64) bool {
	return fail != nil && *fail >= lba && *fail < lba+blocks
}

// ReadBlocks implements firmware.BlockIO.
func (d *RAMDisk) ReadBlocks(mediaID uint32, lba uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := firmware.ValidateTransfer(&d.media, mediaID, lba, buf); err != nil {
		return err
	}

	if covers(d.FailReadAt, lba, uint64(len(buf))/uint64(d.media.BlockSize)) {
		return firmware.ErrDeviceError
	}

	off := lba * uint64(d.media.BlockSize)
	copy(buf, d.data[off:off+uint64(len(buf))])

	d.reads++

	return nil
}

// WriteBlocks implements firmware.BlockIO.
func (d *RAMDisk) WriteBlocks(mediaID uint32, lba uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := firmware.ValidateTransfer(&d.media, mediaID, lba, buf); err != nil {
		return err
	}

	if d.media.ReadOnly {
		return firmware.ErrWriteProtected
	}

	if covers(d.FailWriteAt, lba, uint64(len(buf))/uint64(d.media.BlockSize)) {
		return firmware.ErrDeviceError
	}

	off := lba * uint64(d.media.BlockSize)
	copy(d.data[off:], buf)

	d.writes++

	return nil
}

// FlushBlocks implements firmware.BlockIO.
func (d *RAMDisk) FlushBlocks() error {
	return nil
}

// Bytes returns the disk contents.
//
// The returned slice aliases the disk.
func (d *RAMDisk) Bytes() []byte {
	return d.data
}

// Transfers returns the number of successful block reads and writes.
func (d *RAMDisk) Transfers() (reads, writes int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.reads, d.writes
}
