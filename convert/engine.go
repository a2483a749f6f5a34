// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/volume"
)

// CancelFunc reports whether the user asked to stop the conversion.
type CancelFunc func() bool

// ProgressFunc receives the operation progress in per-mille.
type ProgressFunc func(permille int)

// Result describes a conversion run.
type Result struct {
	// FinalLBA is the disk-relative end of the encrypted area as persisted.
	FinalLBA uint64
	// Chunks is the number of chunks copied.
	Chunks int
	// Sectors is the number of sectors copied.
	Sectors uint64
	// Cancelled is set if the run was stopped by the user.
	Cancelled bool
}

// Engine converts a volume between plaintext and ciphertext in place.
type Engine struct {
	bs        firmware.BootServices
	persister volume.Persister
	options   Options
}

// NewEngine creates an engine allocating its buffer from bs and persisting progress through persister.
func NewEngine(bs firmware.BootServices, persister volume.Persister, opts ...Option) *Engine {
	return &Engine{
		bs:        bs,
		persister: persister,
		options:   applyOptions(opts...),
	}
}

// Convert copies the not yet converted part of the volume through the filter view.
//
// Progress is persisted into hdr once, when the run stops for any reason after the
// transfer buffer was allocated. poll and sink may be nil.
func (e *Engine) Convert(session *Session, dir volume.Direction, hdr *volume.Header, poll CancelFunc, sink ProgressFunc) (Result, error) {
	var result Result

	logger := e.options.Logger

	sectorSize := session.Parent.Media().BlockSize
	if childSize := session.Child.Media().BlockSize; childSize != sectorSize {
		return result, fmt.Errorf("%w: sector size mismatch %d != %d", volume.ErrVolumeCorrupted, sectorSize, childSize)
	}

	startSector := hdr.StartSector(sectorSize)
	encrypted := hdr.EncryptedSectors(sectorSize)
	total := hdr.VolumeSectors(sectorSize)

	if encrypted > total {
		return result, fmt.Errorf("%w: %d encrypted sectors in a %d sector volume", volume.ErrVolumeCorrupted, encrypted, total)
	}

	buf, err := e.bs.AllocatePool(int(e.options.BufferSectors) * int(sectorSize))
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	defer e.bs.FreePool(buf)

	sw, src, dst := newSweep(dir, session, encrypted, total)

	logger.Debug("starting conversion",
		zap.Stringer("direction", dir),
		zap.Uint64("start_sector", startSector),
		zap.Uint64("encrypted_sectors", encrypted),
		zap.Uint64("total_sectors", total),
		zap.Uint64("buffer_sectors", e.options.BufferSectors),
	)

	var ioErr error

	for sw.remaining() > 0 {
		lba, count := sw.next(e.options.BufferSectors)
		chunk := buf[:count*uint64(sectorSize)]

		if err = src.ReadBlocks(src.Media().MediaID, lba, chunk); err != nil {
			ioErr = fmt.Errorf("%w: failed to read %d sectors at %d: %w", ErrIO, count, lba, err)

			break
		}

		if err = dst.WriteBlocks(dst.Media().MediaID, lba, chunk); err != nil {
			ioErr = fmt.Errorf("%w: failed to write %d sectors at %d: %w", ErrIO, count, lba, err)

			break
		}

		sw.advance(count)

		result.Chunks++
		result.Sectors += count

		if sink != nil {
			sink(sw.progress(total))
		}

		if poll != nil && poll() {
			logger.Info("conversion interrupted by user", zap.Uint64("boundary", sw.boundary()))

			result.Cancelled = true

			break
		}
	}

	if ioErr == nil {
		if err = dst.FlushBlocks(); err != nil {
			ioErr = fmt.Errorf("%w: failed to flush: %w", ErrIO, err)
		}
	}

	if ioErr != nil {
		logger.Error("conversion aborted", zap.Error(ioErr))
	}

	result.FinalLBA = startSector + sw.boundary()

	persistErr := volume.RecomputeAndPersist(logger, e.persister, hdr, sectorSize, result.FinalLBA)

	return result, errors.Join(ioErr, persistErr)
}
