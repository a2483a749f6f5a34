// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package memfw implements firmware boot services over an in-memory handle database.
package memfw

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/firmware"
)

// Options configures the handle database.
type Options struct {
	Logger *zap.Logger

	// PoolLimit is the maximum number of bytes outstanding in AllocatePool (0 = unlimited).
	PoolLimit int
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithPoolLimit limits the pool memory available to AllocatePool.
func WithPoolLimit(limit int) Option {
	return func(o *Options) {
		o.PoolLimit = limit
	}
}

type protocolEntry struct {
	iface any
	opens []firmware.OpenProtocolInformationEntry
}

type handleEntry struct {
	protocols map[firmware.GUID]*protocolEntry
}

// Firmware is an in-memory implementation of firmware.BootServices.
type Firmware struct {
	mu sync.Mutex

	options Options

	handles    map[firmware.Handle]*handleEntry
	nextHandle firmware.Handle

	pool     map[*byte]int
	poolUsed int
}

var _ firmware.BootServices = (*Firmware)(nil)

// New creates an empty handle database.
func New(opts ...Option) *Firmware {
	options := Options{
		Logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Firmware{
		options:    options,
		handles:    map[firmware.Handle]*handleEntry{},
		nextHandle: 0x1000,
		pool:       map[*byte]int{},
	}
}

// NewHandle allocates a handle without any protocols.
//
// Such handles are only useful as agent handles (e.g. a loaded image).
func (fw *Firmware) NewHandle() firmware.Handle {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	return fw.newHandleLocked()
}

func (fw *Firmware) newHandleLocked() firmware.Handle {
	h := fw.nextHandle
	fw.nextHandle += 0x10

	fw.handles[h] = &handleEntry{protocols: map[firmware.GUID]*protocolEntry{}}

	return h
}

// InstallProtocol installs iface as protocol on handle.
//
// If handle is the null handle, a new handle is created and returned.
func (fw *Firmware) InstallProtocol(handle firmware.Handle, protocol firmware.GUID, iface any) (firmware.Handle, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if handle == 0 {
		handle = fw.newHandleLocked()
	}

	entry, ok := fw.handles[handle]
	if !ok {
		return 0, firmware.ErrInvalidParameter
	}

	if _, exists := entry.protocols[protocol]; exists {
		return 0, firmware.ErrInvalidParameter
	}

	entry.protocols[protocol] = &protocolEntry{iface: iface}

	fw.options.Logger.Debug("protocol installed", zap.Uintptr("handle", uintptr(handle)), zap.Stringer("protocol", protocol))

	return handle, nil
}

// UninstallProtocol removes protocol from handle.
//
// Removal is refused with ErrAccessDenied while the interface is still open.
func (fw *Firmware) UninstallProtocol(handle firmware.Handle, protocol firmware.GUID) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	proto, err := fw.lookupLocked(handle, protocol)
	if err != nil {
		return err
	}

	if len(proto.opens) > 0 {
		return firmware.ErrAccessDenied
	}

	entry := fw.handles[handle]
	delete(entry.protocols, protocol)

	if len(entry.protocols) == 0 {
		delete(fw.handles, handle)
	}

	return nil
}

// HasProtocol reports whether protocol is installed on handle.
func (fw *Firmware) HasProtocol(handle firmware.Handle, protocol firmware.GUID) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	_, err := fw.lookupLocked(handle, protocol)

	return err == nil
}

func (fw *Firmware) lookupLocked(handle firmware.Handle, protocol firmware.GUID) (*protocolEntry, error) {
	entry, ok := fw.handles[handle]
	if !ok {
		return nil, firmware.ErrInvalidParameter
	}

	proto, ok := entry.protocols[protocol]
	if !ok {
		return nil, firmware.ErrUnsupported
	}

	return proto, nil
}

// OpenProtocol implements firmware.BootServices.
func (fw *Firmware) OpenProtocol(handle firmware.Handle, protocol firmware.GUID, agent, controller firmware.Handle, attributes firmware.OpenAttribute) (any, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	proto, err := fw.lookupLocked(handle, protocol)
	if err != nil {
		return nil, err
	}

	if attributes.Has(firmware.OpenTestProtocol) {
		return nil, nil //nolint:nilnil
	}

	for i, open := range proto.opens {
		if open.AgentHandle != agent && open.Attributes.Has(firmware.OpenByDriver) &&
			(attributes.Has(firmware.OpenByDriver) || attributes.Has(firmware.OpenExclusive)) {
			return nil, firmware.ErrAccessDenied
		}

		if open.AgentHandle == agent && open.ControllerHandle == controller && open.Attributes == attributes {
			if attributes.Has(firmware.OpenByDriver) {
				return nil, firmware.ErrAlreadyStarted
			}

			proto.opens[i].OpenCount++

			return proto.iface, nil
		}
	}

	proto.opens = append(proto.opens, firmware.OpenProtocolInformationEntry{
		AgentHandle:      agent,
		ControllerHandle: controller,
		Attributes:       attributes,
		OpenCount:        1,
	})

	return proto.iface, nil
}

// CloseProtocol implements firmware.BootServices.
//
// Every open made by agent for controller is released at once.
func (fw *Firmware) CloseProtocol(handle firmware.Handle, protocol firmware.GUID, agent, controller firmware.Handle) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	proto, err := fw.lookupLocked(handle, protocol)
	if err != nil {
		return err
	}

	before := len(proto.opens)

	proto.opens = slices.DeleteFunc(proto.opens, func(open firmware.OpenProtocolInformationEntry) bool {
		return open.AgentHandle == agent && open.ControllerHandle == controller
	})

	if len(proto.opens) == before {
		return firmware.ErrNotFound
	}

	return nil
}

// OpenProtocolInformation implements firmware.BootServices.
func (fw *Firmware) OpenProtocolInformation(handle firmware.Handle, protocol firmware.GUID) ([]firmware.OpenProtocolInformationEntry, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	proto, err := fw.lookupLocked(handle, protocol)
	if err != nil {
		return nil, firmware.ErrNotFound
	}

	return slices.Clone(proto.opens), nil
}

// AllocatePool implements firmware.BootServices.
func (fw *Firmware) AllocatePool(size int) ([]byte, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if size <= 0 {
		return nil, firmware.ErrInvalidParameter
	}

	if fw.options.PoolLimit > 0 && fw.poolUsed+size > fw.options.PoolLimit {
		return nil, firmware.ErrOutOfResources
	}

	buf := make([]byte, size)

	fw.pool[&buf[0]] = size
	fw.poolUsed += size

	return buf, nil
}

// FreePool implements firmware.BootServices.
func (fw *Firmware) FreePool(buf []byte) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if len(buf) == 0 {
		return
	}

	size, ok := fw.pool[&buf[0]]
	if !ok {
		fw.options.Logger.Warn("freeing unknown pool buffer", zap.Int("size", len(buf)))

		return
	}

	delete(fw.pool, &buf[0])
	fw.poolUsed -= size
}

// PoolInUse returns the number of bytes currently allocated from the pool.
func (fw *Firmware) PoolInUse() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	return fw.poolUsed
}

// OpenCount returns the number of recorded opens of protocol on handle.
func (fw *Firmware) OpenCount(handle firmware.Handle, protocol firmware.GUID) int {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	proto, err := fw.lookupLocked(handle, protocol)
	if err != nil {
		return 0
	}

	return len(proto.opens)
}
