// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/YodaRocker/CipherShed/internal/journal"
	"github.com/YodaRocker/CipherShed/volume"
)

var statusCmd = &cobra.Command{
	Use:   "status <device>",
	Short: "Show the conversion state of the volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return showStatus(os.Stdout, args[0])
	},
}

func showStatus(w io.Writer, path string) error {
	d, err := openDisk(path, false)
	if err != nil {
		return err
	}

	defer d.Close() //nolint:errcheck

	term, err := newConsole()
	if err != nil {
		return err
	}

	guard := d.guard()

	var hdr *volume.Header

	for retry := false; hdr == nil; retry = true {
		password, escaped, err := term.ReadPassword(retry)
		if err != nil {
			return err
		}

		if escaped {
			return nil
		}

		hdr, err = guard.Unlock(password)

		clear(password)

		if err != nil && !errors.Is(err, volume.ErrWrongPassword) {
			return err
		}
	}

	volumeUUID, err := d.store.VolumeUUID()
	if err != nil {
		return err
	}

	percent := 0.0
	if hdr.VolumeSize > 0 {
		percent = float64(hdr.EncryptedAreaLength) * 100 / float64(hdr.VolumeSize)
	}

	fmt.Fprintf(w, "volume:     %s\n", volumeUUID)
	fmt.Fprintf(w, "partition:  %d (%s)\n", d.partitionNo, d.partitionGUID)
	fmt.Fprintf(w, "start:      sector %d\n", hdr.StartSector(d.dev.Media().BlockSize))
	fmt.Fprintf(w, "size:       %s\n", humanize.IBytes(hdr.VolumeSize))
	fmt.Fprintf(w, "encrypted:  %s (%.1f%%)\n", humanize.IBytes(hdr.EncryptedAreaLength), percent)

	if cfg.Journal == "" {
		return nil
	}

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}

	defer j.Close() //nolint:errcheck

	records, err := j.List(volumeUUID)
	if err != nil {
		return err
	}

	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "#\tWHEN\tDIRECTION\tENCRYPTED\tRESULT")

	for _, rec := range records {
		result := rec.Decision
		if rec.Error != "" {
			result += ": " + rec.Error
		}

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s -> %s\t%s\n",
			rec.Sequence,
			humanize.Time(rec.Time),
			rec.Direction,
			humanize.IBytes(rec.LengthBefore),
			humanize.IBytes(rec.LengthAfter),
			result,
		)
	}

	return tw.Flush()
}
