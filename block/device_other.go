// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package block

import (
	"os"
)

// NewFromPath returns a new Device from the specified path.
//
// Only disk images are supported on this platform.
func NewFromPath(path string, opts ...Option) (*Device, error) {
	options := applyOptions(opts...)

	f, err := os.OpenFile(path, options.Flag, 0)
	if err != nil {
		return nil, err
	}

	d := &Device{
		f:         f,
		ownedFile: true,
	}

	if err = d.init(options); err != nil {
		f.Close() //nolint:errcheck

		return nil, err
	}

	return d, nil
}

func (d *Device) isBlockDevice() (bool, error) {
	return false, nil
}

// GetSize returns the image size in bytes.
func (d *Device) GetSize() (uint64, error) {
	st, err := d.f.Stat()
	if err != nil {
		return 0, err
	}

	return uint64(st.Size()), nil
}

// GetSectorSize returns the default sector size.
func (d *Device) GetSectorSize() uint {
	return DefaultBlockSize
}

// IsReadOnly always returns false for images.
func (d *Device) IsReadOnly() (bool, error) {
	return false, nil
}

// Lock is a no-op on this platform.
func (d *Device) Lock(bool) error {
	return nil
}

// TryLock is a no-op on this platform.
func (d *Device) TryLock(bool) error {
	return nil
}

// Unlock is a no-op on this platform.
func (d *Device) Unlock() error {
	return nil
}

// Sync flushes the file buffers.
func (d *Device) Sync() error {
	return d.f.Sync()
}
