// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// NewFromPath returns a new Device from the specified path.
func NewFromPath(path string, opts ...Option) (*Device, error) {
	options := applyOptions(opts...)

	f, err := os.OpenFile(path, options.Flag|unix.O_CLOEXEC, 0)
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
	st, err := d.f.Stat()
	if err != nil {
		return false, err
	}

	return st.Mode()&os.ModeDevice != 0 && st.Mode()&os.ModeCharDevice == 0, nil
}

// GetSize returns blockdevice size in bytes.
func (d *Device) GetSize() (uint64, error) {
	isBlk, err := d.isBlockDevice()
	if err != nil {
		return 0, err
	}

	if !isBlk {
		st, err := d.f.Stat()
		if err != nil {
			return 0, err
		}

		return uint64(st.Size()), nil
	}

	var devsize uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&devsize))); errno != 0 {
		return 0, errno
	}

	return devsize, nil
}

// GetSectorSize returns blockdevice sector size in bytes.
func (d *Device) GetSectorSize() uint {
	var size uint

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(unix.BLKSSZGET), uintptr(unsafe.Pointer(&size))); errno != 0 {
		return DefaultBlockSize
	}

	return size
}

// GetDevNo returns the device number of the blockdevice.
func (d *Device) GetDevNo() (uint64, error) {
	if d.devNo != 0 {
		return d.devNo, nil
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(d.f.Fd()), &st); err != nil {
		return 0, err
	}

	d.devNo = st.Rdev

	return d.devNo, nil
}

// IsReadOnly returns true if the blockdevice is read-only.
//
// Disk images are never read-only at the device level.
func (d *Device) IsReadOnly() (bool, error) {
	isBlk, err := d.isBlockDevice()
	if err != nil || !isBlk {
		return false, err
	}

	devNo, err := d.GetDevNo()
	if err != nil {
		return false, err
	}

	roContents, err := os.ReadFile(filepath.Join(fmt.Sprintf("/sys/dev/block/%d:%d", unix.Major(devNo), unix.Minor(devNo)), "ro"))
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	if len(roContents) > 0 {
		return roContents[0] == '1', nil
	}

	var flags int
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKROGET, uintptr(unsafe.Pointer(&flags))); errno != 0 {
		return false, errno
	}

	return flags != 0, nil
}

// Lock (and block until the lock is acquired) for the block device.
func (d *Device) Lock(exclusive bool) error {
	return d.lock(exclusive, 0)
}

// TryLock (and return an error if failed).
func (d *Device) TryLock(exclusive bool) error {
	return d.lock(exclusive, unix.LOCK_NB)
}

// Unlock releases any lock.
func (d *Device) Unlock() error {
	for {
		if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func (d *Device) lock(exclusive bool, flag int) error {
	if exclusive {
		flag |= unix.LOCK_EX
	} else {
		flag |= unix.LOCK_SH
	}

	for {
		if err := unix.Flock(int(d.f.Fd()), flag); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// Sync flushes the device buffers.
func (d *Device) Sync() error {
	return unix.Fdatasync(int(d.f.Fd()))
}
