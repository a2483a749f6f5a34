// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"fmt"

	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/internal/ioutil"
)

// Media implements firmware.BlockIO.
func (d *Device) Media() *firmware.Media {
	return &d.media
}

// ReadBlocks implements firmware.BlockIO.
func (d *Device) ReadBlocks(mediaID uint32, lba uint64, buf []byte) error {
	if err := firmware.ValidateTransfer(&d.media, mediaID, lba, buf); err != nil {
		return err
	}

	if err := ioutil.ReadFullAt(d.f, buf, int64(lba)*int64(d.media.BlockSize)); err != nil {
		return fmt.Errorf("%w: %w", firmware.ErrDeviceError, err)
	}

	return nil
}

// WriteBlocks implements firmware.BlockIO.
func (d *Device) WriteBlocks(mediaID uint32, lba uint64, buf []byte) error {
	if err := firmware.ValidateTransfer(&d.media, mediaID, lba, buf); err != nil {
		return err
	}

	if d.media.ReadOnly {
		return firmware.ErrWriteProtected
	}

	if err := ioutil.WriteFullAt(d.f, buf, int64(lba)*int64(d.media.BlockSize)); err != nil {
		return fmt.Errorf("%w: %w", firmware.ErrDeviceError, err)
	}

	return nil
}

// FlushBlocks implements firmware.BlockIO.
func (d *Device) FlushBlocks() error {
	if d.media.ReadOnly {
		return nil
	}

	if err := d.Sync(); err != nil {
		return fmt.Errorf("%w: %w", firmware.ErrDeviceError, err)
	}

	return nil
}

// Window is a contiguous range of blocks of a parent device exposed as its own BlockIO.
//
// It plays the role of a partition handle.
type Window struct {
	parent firmware.BlockIO
	start  uint64
	media  firmware.Media
}

var _ firmware.BlockIO = (*Window)(nil)

// NewWindow returns a view of blocks [start, start+blocks) of parent.
func NewWindow(parent firmware.BlockIO, mediaID uint32, start, blocks uint64) (*Window, error) {
	pm := parent.Media()

	if blocks == 0 || start > pm.LastBlock || blocks > pm.LastBlock-start+1 {
		return nil, fmt.Errorf("window [%d, %d) out of device range (%d blocks)", start, start+blocks, pm.Blocks())
	}

	return &Window{
		parent: parent,
		start:  start,
		media: firmware.Media{
			MediaID:      mediaID,
			BlockSize:    pm.BlockSize,
			LastBlock:    blocks - 1,
			ReadOnly:     pm.ReadOnly,
			MediaPresent: pm.MediaPresent,
		},
	}, nil
}

// Start returns the first parent block of the window.
func (w *Window) Start() uint64 {
	return w.start
}

// Media implements firmware.BlockIO.
func (w *Window) Media() *firmware.Media {
	return &w.media
}

// ReadBlocks implements firmware.BlockIO.
func (w *Window) ReadBlocks(mediaID uint32, lba uint64, buf []byte) error {
	if err := firmware.ValidateTransfer(&w.media, mediaID, lba, buf); err != nil {
		return err
	}

	return w.parent.ReadBlocks(w.parent.Media().MediaID, w.start+lba, buf)
}

// WriteBlocks implements firmware.BlockIO.
func (w *Window) WriteBlocks(mediaID uint32, lba uint64, buf []byte) error {
	if err := firmware.ValidateTransfer(&w.media, mediaID, lba, buf); err != nil {
		return err
	}

	if w.media.ReadOnly {
		return firmware.ErrWriteProtected
	}

	return w.parent.WriteBlocks(w.parent.Media().MediaID, w.start+lba, buf)
}

// FlushBlocks implements firmware.BlockIO.
func (w *Window) FlushBlocks() error {
	return w.parent.FlushBlocks()
}
