// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/block"
	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/firmware/memfw"
	"github.com/YodaRocker/CipherShed/header"
	"github.com/YodaRocker/CipherShed/partitioning/gpt"
	"github.com/YodaRocker/CipherShed/volume"
)

// Media IDs of the simulated handles.
const (
	diskMediaID      = 1
	partitionMediaID = 2
)

// volumePartitionType is the GPT partition type of CipherShed volumes.
var volumePartitionType = uuid.MustParse("B5E4D1A2-4C3F-4E8A-9F1D-2C6B7A8E9D03")

const volumePartitionName = "CipherShed"

// disk is a disk image or blockdevice published in a simulated handle database.
type disk struct {
	dev   *block.Device
	fw    *memfw.Firmware
	store *header.Store

	// partition holds the volume.
	partition       *block.Window
	partitionHandle firmware.Handle
	partitionNo     int
	partitionGUID   uuid.UUID
}

func openDevice(path string, write bool) (*block.Device, error) {
	opts := []block.Option{block.WithMediaID(diskMediaID)}

	if write {
		opts = append(opts, block.OpenForWrite())
	}

	if cfg.SectorSize != nil {
		opts = append(opts, block.WithBlockSize(*cfg.SectorSize))
	}

	dev, err := block.NewFromPath(path, opts...)
	if err != nil {
		return nil, err
	}

	if err = dev.TryLock(write); err != nil {
		dev.Close() //nolint:errcheck

		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return dev, nil
}

// openDisk opens a partitioned disk and publishes its volume partition.
func openDisk(path string, write bool) (*disk, error) {
	dev, err := openDevice(path, write)
	if err != nil {
		return nil, err
	}

	d, err := func() (*disk, error) {
		table, err := gpt.Read(dev)
		if err != nil {
			return nil, fmt.Errorf("failed to read partition table: %w", err)
		}

		no, part, ok := table.FindByType(volumePartitionType)
		if !ok {
			return nil, fmt.Errorf("no volume partition found on %s", path)
		}

		return publishDisk(dev, table, no, part)
	}()
	if err != nil {
		dev.Close() //nolint:errcheck

		return nil, err
	}

	return d, nil
}

// initDisk writes a fresh partition table with a single volume partition
// spanning the disk and publishes it.
func initDisk(path string) (*disk, error) {
	dev, err := openDevice(path, true)
	if err != nil {
		return nil, err
	}

	d, err := func() (*disk, error) {
		table, err := gpt.New(dev, gpt.WithAlignment(cfg.PartitionAlignment))
		if err != nil {
			return nil, err
		}

		no, part, err := table.AllocatePartition(table.LargestContiguousAllocatable(), volumePartitionName, volumePartitionType)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate volume partition: %w", err)
		}

		if err = table.Write(); err != nil {
			return nil, err
		}

		return publishDisk(dev, table, no, &part)
	}()
	if err != nil {
		dev.Close() //nolint:errcheck

		return nil, err
	}

	return d, nil
}

func publishDisk(dev *block.Device, table *gpt.Table, no int, part *gpt.Partition) (*disk, error) {
	if first, _ := table.UsableRange(); cfg.HeaderLBA < first || cfg.HeaderLBA >= part.FirstLBA {
		return nil, fmt.Errorf("header sector %d must lie between the partition entries (%d) and the volume (%d)",
			cfg.HeaderLBA, first, part.FirstLBA)
	}

	partition, err := block.NewWindow(dev, partitionMediaID, part.FirstLBA, part.Blocks())
	if err != nil {
		return nil, err
	}

	fw := memfw.New(memfw.WithLogger(logger.Named("firmware")))

	if _, err = fw.InstallProtocol(0, firmware.BlockIOProtocol, dev); err != nil {
		return nil, err
	}

	partitionHandle, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, partition)
	if err != nil {
		return nil, err
	}

	logger.Debug("volume partition",
		zap.Int("number", no),
		zap.Stringer("guid", part.PartGUID),
		zap.Uint64("first_lba", part.FirstLBA),
		zap.Uint64("blocks", part.Blocks()),
	)

	return &disk{
		dev: dev,
		fw:  fw,
		store: header.New(dev,
			header.WithLogger(logger.Named("header")),
			header.WithIterations(cfg.KDFIterations),
			header.WithHeaderLBA(cfg.HeaderLBA),
		),
		partition:       partition,
		partitionHandle: partitionHandle,
		partitionNo:     no,
		partitionGUID:   part.PartGUID,
	}, nil
}

func (d *disk) Close() error {
	d.store.Lock()

	return errors.Join(d.dev.Unlock(), d.dev.Close())
}

// partitionGuard refuses headers describing a volume other than the partition.
type partitionGuard struct {
	*header.Store

	start  uint64
	before *volume.Header
}

func (g *partitionGuard) Unlock(password []byte) (*volume.Header, error) {
	hdr, err := g.Store.Unlock(password)
	if err != nil {
		return nil, err
	}

	if hdr.EncryptedAreaStart != g.start {
		g.Store.Lock()

		return nil, fmt.Errorf("%w: volume starts at byte %d, partition at %d", volume.ErrVolumeCorrupted, hdr.EncryptedAreaStart, g.start)
	}

	before := *hdr
	g.before = &before

	return hdr, nil
}

func (d *disk) guard() *partitionGuard {
	return &partitionGuard{
		Store: d.store,
		start: d.partition.Start() * uint64(d.dev.Media().BlockSize),
	}
}
