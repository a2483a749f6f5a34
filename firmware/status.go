// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package firmware

import "fmt"

// Status is a firmware status code returned as an error.
type Status uint64

const errorBit = 1 << 63

// Firmware error statuses.
const (
	ErrLoadError        Status = errorBit | 1
	ErrInvalidParameter Status = errorBit | 2
	ErrUnsupported      Status = errorBit | 3
	ErrBadBufferSize    Status = errorBit | 4
	ErrDeviceError      Status = errorBit | 7
	ErrWriteProtected   Status = errorBit | 8
	ErrOutOfResources   Status = errorBit | 9
	ErrVolumeCorrupted  Status = errorBit | 10
	ErrNoMedia          Status = errorBit | 12
	ErrMediaChanged     Status = errorBit | 13
	ErrNotFound         Status = errorBit | 14
	ErrAccessDenied     Status = errorBit | 15
	ErrAlreadyStarted   Status = errorBit | 20
)

var statusNames = map[Status]string{
	ErrLoadError:        "load error",
	ErrInvalidParameter: "invalid parameter",
	ErrUnsupported:      "unsupported",
	ErrBadBufferSize:    "bad buffer size",
	ErrDeviceError:      "device error",
	ErrWriteProtected:   "write protected",
	ErrOutOfResources:   "out of resources",
	ErrVolumeCorrupted:  "volume corrupted",
	ErrNoMedia:          "no media",
	ErrMediaChanged:     "media changed",
	ErrNotFound:         "not found",
	ErrAccessDenied:     "access denied",
	ErrAlreadyStarted:   "already started",
}

// Error implements error.
func (s Status) Error() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status 0x%x", uint64(s))
}
