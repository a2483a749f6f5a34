// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package volume

import (
	"fmt"

	"go.uber.org/zap"
)

// Persister writes the volume header back to the media.
type Persister interface {
	Update(hdr *Header) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(hdr *Header) error

// Update implements Persister.
func (f PersisterFunc) Update(hdr *Header) error {
	return f(hdr)
}

// RecomputeAndPersist records processedLBA as the end of the encrypted area and persists the header.
//
// processedLBA is disk-relative and must lie within [start, start+volumeSectors].
// The header is not modified if the LBA is out of range or the persister fails.
func RecomputeAndPersist(logger *zap.Logger, p Persister, hdr *Header, sectorSize uint32, processedLBA uint64) error {
	startSector := hdr.StartSector(sectorSize)
	volumeSectors := hdr.VolumeSectors(sectorSize)

	if processedLBA < startSector || processedLBA > startSector+volumeSectors {
		logger.Error("inconsistent volume information",
			zap.Uint64("start_sector", startSector),
			zap.Uint64("lba", processedLBA),
			zap.Uint64("volume_sectors", volumeSectors),
		)

		return fmt.Errorf("%w: lba %d outside [%d, %d]", ErrVolumeCorrupted, processedLBA, startSector, startSector+volumeSectors)
	}

	previous := hdr.EncryptedAreaLength

	sectors := processedLBA - startSector
	hdr.EncryptedAreaLength = sectors * uint64(sectorSize)

	logger.Debug("updating encrypted area length",
		zap.Uint64("length", hdr.EncryptedAreaLength),
		zap.Uint64("sectors", sectors),
	)

	if err := p.Update(hdr); err != nil {
		hdr.EncryptedAreaLength = previous

		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	return nil
}
