// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/header"
)

var imageCmdFlags struct {
	size string
	seed string
}

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage disk images",
}

var imageCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a disk image holding a plaintext volume",
	Long: `Create a GPT partitioned disk image with a volume header and a plaintext volume.

The volume partition spans the whole usable area of the image. With --seed the
volume is filled with the contents of a zstd compressed raw image.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := humanize.ParseBytes(imageCmdFlags.size)
		if err != nil {
			return fmt.Errorf("invalid size: %w", err)
		}

		return createImage(args[0], size, imageCmdFlags.seed)
	},
}

func init() {
	imageCreateCmd.Flags().StringVar(&imageCmdFlags.size, "size", "64MiB", "image size")
	imageCreateCmd.Flags().StringVar(&imageCmdFlags.seed, "seed", "", "zstd compressed raw volume contents")

	imageCmd.AddCommand(imageCreateCmd)
}

func createImage(path string, size uint64, seed string) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			os.Remove(path) //nolint:errcheck
		}
	}()

	if err = f.Truncate(int64(size)); err != nil {
		f.Close() //nolint:errcheck

		return err
	}

	if err = f.Close(); err != nil {
		return err
	}

	d, err := initDisk(path)
	if err != nil {
		return err
	}

	defer d.Close() //nolint:errcheck

	sectorSize := uint64(d.dev.Media().BlockSize)
	volumeSize := d.partition.Media().Blocks() * sectorSize

	if seed != "" {
		if err = writeSeed(path, seed, d.partition.Start()*sectorSize, volumeSize); err != nil {
			return err
		}
	}

	password, err := readNewPassword()
	if err != nil {
		return err
	}

	defer clear(password)

	if err = d.store.Format(password, header.FormatParams{
		VolumeStart: d.partition.Start() * sectorSize,
		VolumeSize:  volumeSize,
	}); err != nil {
		return err
	}

	volumeUUID, err := d.store.VolumeUUID()
	if err != nil {
		return err
	}

	logger.Info("image created",
		zap.String("path", path),
		zap.Stringer("volume_uuid", volumeUUID),
		zap.Int("partition", d.partitionNo),
		zap.String("volume_size", humanize.IBytes(volumeSize)),
	)

	return nil
}

func writeSeed(path, seed string, offset, limit uint64) error {
	in, err := os.Open(seed)
	if err != nil {
		return err
	}

	defer in.Close() //nolint:errcheck

	decoder, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to open seed: %w", err)
	}

	defer decoder.Close()

	out, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	defer out.Close() //nolint:errcheck

	n, err := io.Copy(io.NewOffsetWriter(out, int64(offset)), io.LimitReader(decoder, int64(limit)+1))
	if err != nil {
		return fmt.Errorf("failed to write seed: %w", err)
	}

	if uint64(n) > limit {
		return fmt.Errorf("seed exceeds the volume size %s", humanize.IBytes(limit))
	}

	logger.Debug("seed written", zap.Int64("bytes", n))

	return out.Sync()
}

func readNewPassword() ([]byte, error) {
	term, err := newConsole()
	if err != nil {
		return nil, err
	}

	password, escaped, err := term.ReadPassword(false)
	if err != nil {
		return nil, err
	}

	if escaped {
		return nil, errors.New("aborted")
	}

	if len(password) == 0 {
		return nil, errors.New("empty password")
	}

	again, escaped, err := term.ReadPassword(false)
	if err != nil {
		return nil, err
	}

	defer clear(again)

	if escaped || !bytes.Equal(password, again) {
		return nil, errors.New("passwords do not match")
	}

	return password, nil
}
