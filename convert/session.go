// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/firmware"
)

// Session holds the block I/O interfaces of a parent controller and its filter child.
type Session struct {
	bs     firmware.BootServices
	logger *zap.Logger

	parentHandle firmware.Handle
	childHandle  firmware.Handle

	// Parent is the raw device.
	Parent firmware.BlockIO
	// Child is the filter view of the device.
	Child firmware.BlockIO
}

func openBlockIO(bs firmware.BootServices, handle firmware.Handle) (firmware.BlockIO, error) {
	iface, err := bs.OpenProtocol(handle, firmware.BlockIOProtocol, handle, handle, firmware.OpenGetProtocol)
	if err != nil {
		return nil, err
	}

	blockIO, ok := iface.(firmware.BlockIO)
	if !ok {
		bs.CloseProtocol(handle, firmware.BlockIOProtocol, handle, handle) //nolint:errcheck

		return nil, firmware.ErrUnsupported
	}

	return blockIO, nil
}

// OpenSession opens the block I/O interfaces of parent and child.
//
// Either both interfaces are open on return or none is.
func OpenSession(bs firmware.BootServices, parent, child firmware.Handle, logger *zap.Logger) (*Session, error) {
	parentIO, err := openBlockIO(bs, parent)
	if err != nil {
		return nil, fmt.Errorf("%w: parent: %w", ErrProtocolOpenFailed, err)
	}

	childIO, err := openBlockIO(bs, child)
	if err != nil {
		if closeErr := bs.CloseProtocol(parent, firmware.BlockIOProtocol, parent, parent); closeErr != nil {
			logger.Error("failed to close parent block I/O", zap.Error(closeErr))
		}

		return nil, fmt.Errorf("%w: child: %w", ErrProtocolOpenFailed, err)
	}

	return &Session{
		bs:           bs,
		logger:       logger,
		parentHandle: parent,
		childHandle:  child,
		Parent:       parentIO,
		Child:        childIO,
	}, nil
}

// Close releases both interfaces.
//
// Each side is closed even if closing the other one fails.
func (s *Session) Close() error {
	var errs []error

	for _, handle := range []firmware.Handle{s.parentHandle, s.childHandle} {
		if err := s.bs.CloseProtocol(handle, firmware.BlockIOProtocol, handle, handle); err != nil {
			s.logger.Error("failed to close block I/O", zap.Uintptr("handle", uintptr(handle)), zap.Error(err))

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
