// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert

import (
	"fmt"

	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/firmware"
)

// FindFilterChild returns the child controller created on parent by the crypto filter driver.
//
// Only children carrying firmware.CallerIDProtocol are accepted; the first match wins.
func FindFilterChild(bs firmware.BootServices, parent firmware.Handle, logger *zap.Logger) (firmware.Handle, error) {
	entries, err := bs.OpenProtocolInformation(parent, firmware.BlockIOProtocol)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProtocolQueryFailed, err)
	}

	children := xslices.Filter(entries, func(entry firmware.OpenProtocolInformationEntry) bool {
		return entry.Attributes.Has(firmware.OpenByChildController)
	})

	for _, candidate := range children {
		logger.Debug("probing child controller", zap.Uintptr("handle", uintptr(candidate.ControllerHandle)))

		if _, err = bs.OpenProtocol(candidate.ControllerHandle, firmware.CallerIDProtocol, parent, candidate.ControllerHandle, firmware.OpenTestProtocol); err != nil {
			continue
		}

		return candidate.ControllerHandle, nil
	}

	return 0, ErrDeviceNotFound
}
