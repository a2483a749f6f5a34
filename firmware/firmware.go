// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package firmware models the pre-boot firmware protocol surface consumed by the loader.
//
// Device handles are borrowed identifiers: nothing in the loader frees them.
// Only protocol interfaces opened on a handle carry a release obligation.
package firmware

import "github.com/google/uuid"

// Handle identifies a firmware object (controller, image, agent).
//
// The zero value is the null handle.
type Handle uintptr

// GUID identifies a protocol.
type GUID = uuid.UUID

// Protocol GUIDs used by the loader.
var (
	// BlockIOProtocol is the block-addressable device capability.
	BlockIOProtocol = uuid.MustParse("964E5B21-6459-11D2-8E39-00A0C969723B")

	// ComponentNameProtocol exposes the human readable driver name.
	ComponentNameProtocol = uuid.MustParse("107A772C-D5E1-11D4-9A46-0090273FC14D")

	// CallerIDProtocol marks child devices created by the loader's own filter driver.
	CallerIDProtocol = uuid.MustParse("3152BCA5-EADE-433D-862E-C01CDC291F44")
)

// OpenAttribute describes how a protocol interface was opened.
type OpenAttribute uint32

// Open attributes.
const (
	OpenByHandleProtocol  OpenAttribute = 0x00000001
	OpenGetProtocol       OpenAttribute = 0x00000002
	OpenTestProtocol      OpenAttribute = 0x00000004
	OpenByChildController OpenAttribute = 0x00000008
	OpenByDriver          OpenAttribute = 0x00000010
	OpenExclusive         OpenAttribute = 0x00000020
)

// Has returns true if all bits of flag are set.
func (a OpenAttribute) Has(flag OpenAttribute) bool {
	return a&flag == flag
}

// OpenProtocolInformationEntry describes one consumer of a protocol interface.
type OpenProtocolInformationEntry struct {
	AgentHandle      Handle
	ControllerHandle Handle
	Attributes       OpenAttribute
	OpenCount        uint32
}

// Media describes the medium behind a BlockIO interface.
type Media struct {
	MediaID      uint32
	BlockSize    uint32
	LastBlock    uint64
	ReadOnly     bool
	MediaPresent bool
}

// Blocks returns the number of addressable blocks.
func (m *Media) Blocks() uint64 {
	if !m.MediaPresent {
		return 0
	}

	return m.LastBlock + 1
}

// BlockIO is the block-addressable device capability.
//
// Buffers passed to ReadBlocks and WriteBlocks must be a multiple of the block size.
type BlockIO interface {
	Media() *Media
	ReadBlocks(mediaID uint32, lba uint64, buf []byte) error
	WriteBlocks(mediaID uint32, lba uint64, buf []byte) error
	FlushBlocks() error
}

// ComponentName exposes the name of a driver.
type ComponentName interface {
	// DriverName returns the UCS-2 encoded driver name.
	DriverName() []byte
}

// BootServices is the subset of firmware boot services used by the loader.
type BootServices interface {
	// OpenProtocol returns the interface of protocol on handle, recording the consumer.
	OpenProtocol(handle Handle, protocol GUID, agent, controller Handle, attributes OpenAttribute) (any, error)
	// CloseProtocol releases an interface opened with OpenProtocol.
	CloseProtocol(handle Handle, protocol GUID, agent, controller Handle) error
	// OpenProtocolInformation lists the consumers of protocol on handle.
	OpenProtocolInformation(handle Handle, protocol GUID) ([]OpenProtocolInformationEntry, error)
	// InstallProtocol installs iface on handle, creating a new handle if handle is null.
	InstallProtocol(handle Handle, protocol GUID, iface any) (Handle, error)
	// UninstallProtocol removes protocol from handle.
	UninstallProtocol(handle Handle, protocol GUID) error
	// AllocatePool allocates a buffer of size bytes.
	AllocatePool(size int) ([]byte, error)
	// FreePool releases a buffer returned by AllocatePool.
	FreePool(buf []byte)
}

// ValidateTransfer checks that a transfer of len(buf) bytes at lba fits the media.
func ValidateTransfer(media *Media, mediaID uint32, lba uint64, buf []byte) error {
	if !media.MediaPresent {
		return ErrNoMedia
	}

	if mediaID != media.MediaID {
		return ErrMediaChanged
	}

	if media.BlockSize == 0 || len(buf)%int(media.BlockSize) != 0 {
		return ErrBadBufferSize
	}

	blocks := uint64(len(buf)) / uint64(media.BlockSize)

	if lba > media.LastBlock || blocks > media.LastBlock-lba+1 {
		return ErrInvalidParameter
	}

	return nil
}
