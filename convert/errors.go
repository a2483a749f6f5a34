// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert

import "errors"

// Common errors.
//
// Volume header inconsistencies are reported as volume.ErrVolumeCorrupted,
// header write failures as volume.ErrPersistFailed. Cancellation is not an
// error, it is reported as Result.Cancelled.
var (
	ErrDeviceNotFound      = errors.New("filter child device not found")
	ErrProtocolQueryFailed = errors.New("failed to query protocol information")
	ErrProtocolOpenFailed  = errors.New("failed to open block I/O protocol")
	ErrIO                  = errors.New("block I/O failure")
	ErrOutOfMemory         = errors.New("failed to allocate transfer buffer")
)
