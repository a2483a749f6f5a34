// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/convert"
	"github.com/YodaRocker/CipherShed/filter"
	"github.com/YodaRocker/CipherShed/internal/journal"
	"github.com/YodaRocker/CipherShed/volume"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <device>",
	Short: "Encrypt the volume in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runConversion(args[0], volume.Encrypt)
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <device>",
	Short: "Decrypt the volume in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runConversion(args[0], volume.Decrypt)
	},
}

func runConversion(path string, dir volume.Direction) error {
	d, err := openDisk(path, true)
	if err != nil {
		return err
	}

	defer d.Close() //nolint:errcheck

	term, err := newConsole()
	if err != nil {
		return err
	}

	guard := d.guard()

	loader := filter.NewLoader(d.fw, d.partitionHandle, d.store, filter.WithLogger(logger.Named("filter")))

	defer func() {
		if stopErr := loader.Stop(); stopErr != nil {
			logger.Warn("failed to stop filter driver", zap.Error(stopErr))
		}
	}()

	started := time.Now()

	decision, err := convert.RunConversion(d.fw.NewHandle(), convert.System{
		BootServices: d.fw,
		Console:      term,
		Header:       guard,
		Driver:       loader,
		Controller:   d.partitionHandle,
	}, dir,
		convert.WithLogger(logger.Named("convert")),
		convert.WithBufferSectors(cfg.BufferSectors),
		convert.WithSilent(cfg.Silent),
	)

	if journalErr := recordRun(d, guard, dir, decision, started, err); journalErr != nil {
		logger.Warn("failed to record run", zap.Error(journalErr))
	}

	switch decision {
	case convert.Reboot:
		fmt.Println("Conversion stopped, the volume header was updated.")
	case convert.EscPressed:
		fmt.Println("Aborted.")
	case convert.ServiceMenu:
	}

	return err
}

func recordRun(d *disk, guard *partitionGuard, dir volume.Direction, decision convert.Decision, started time.Time, runErr error) error {
	if cfg.Journal == "" || guard.before == nil {
		return nil
	}

	volumeUUID, err := d.store.VolumeUUID()
	if err != nil {
		return err
	}

	rec := journal.Record{
		Time:         started,
		Direction:    dir.String(),
		Decision:     decision.String(),
		LengthBefore: guard.before.EncryptedAreaLength,
		LengthAfter:  guard.before.EncryptedAreaLength,
		VolumeSize:   guard.before.VolumeSize,
	}

	if hdr, err := d.store.Header(); err == nil {
		rec.LengthAfter = hdr.EncryptedAreaLength
	}

	if runErr != nil {
		rec.Error = runErr.Error()
	}

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}

	defer j.Close() //nolint:errcheck

	_, err = j.Append(volumeUUID, rec)

	return err
}
