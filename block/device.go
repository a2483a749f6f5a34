// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides firmware block I/O over blockdevices and disk images.
package block

import (
	"fmt"
	"os"

	"github.com/YodaRocker/CipherShed/firmware"
)

// DefaultBlockSize is the default block size in bytes.
const DefaultBlockSize = 512

// Options for opening a block device.
type Options struct {
	Flag      int
	MediaID   uint32
	BlockSize uint
}

// Option is a function that sets some option.
type Option func(*Options)

// OpenForWrite opens the device for reading and writing.
func OpenForWrite() Option {
	return func(o *Options) {
		o.Flag |= os.O_RDWR
	}
}

// WithMediaID sets the media identity reported through firmware.Media.
func WithMediaID(id uint32) Option {
	return func(o *Options) {
		o.MediaID = id
	}
}

// WithBlockSize sets the sector size of disk images.
//
// Block devices always use the logical sector size reported by the kernel.
func WithBlockSize(size uint) Option {
	return func(o *Options) {
		o.BlockSize = size
	}
}

func applyOptions(opts ...Option) Options {
	var o Options

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Device wraps blockdevice operations.
type Device struct {
	f         *os.File
	ownedFile bool
	devNo     uint64

	media firmware.Media
}

var _ firmware.BlockIO = (*Device)(nil)

// NewFromFile returns a new Device from the specified file.
//
// The file is not closed by Device.Close.
func NewFromFile(f *os.File, opts ...Option) (*Device, error) {
	d := &Device{f: f}

	if err := d.init(applyOptions(opts...)); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Device) init(options Options) error {
	size, err := d.GetSize()
	if err != nil {
		return fmt.Errorf("failed to get size: %w", err)
	}

	isBlk, err := d.isBlockDevice()
	if err != nil {
		return fmt.Errorf("failed to stat device: %w", err)
	}

	blockSize := options.BlockSize
	if blockSize == 0 || isBlk {
		blockSize = d.GetSectorSize()
	}

	if !validBlockSize(blockSize) {
		return fmt.Errorf("invalid block size %d", blockSize)
	}

	readOnly, err := d.IsReadOnly()
	if err != nil {
		return fmt.Errorf("failed to check read-only status: %w", err)
	}

	blocks := size / uint64(blockSize)

	d.media = firmware.Media{
		MediaID:      options.MediaID,
		BlockSize:    uint32(blockSize),
		ReadOnly:     readOnly || options.Flag&os.O_RDWR == 0,
		MediaPresent: blocks > 0,
	}

	if blocks > 0 {
		d.media.LastBlock = blocks - 1
	}

	return nil
}

// Close the device.
//
// No-op if the device was created from a file.
func (d *Device) Close() error {
	if !d.ownedFile {
		return nil
	}

	return d.f.Close()
}

// validBlockSize accepts power of two sizes of at least 512 bytes.
func validBlockSize(size uint) bool {
	return size >= 512 && size&(size-1) == 0
}
