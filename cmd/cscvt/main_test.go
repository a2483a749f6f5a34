// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YodaRocker/CipherShed/header"
	"github.com/YodaRocker/CipherShed/partitioning/gpt"
	"github.com/YodaRocker/CipherShed/volume"
)

const sectorSize = 512

func setupConfig(t *testing.T) {
	t.Helper()

	cfg = config{
		BufferSectors: 16,
		KDFIterations: 1000,
		HeaderLBA:     62,
		SectorSize:    pointer.To[uint](sectorSize),

		PartitionAlignment: 64,
	}

	logger = zaptest.NewLogger(t)
}

func emptyImage(t *testing.T, sectors int64) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "disk.img")

	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(sectors*sectorSize))
	require.NoError(t, f.Close())

	return path
}

func compress(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "seed.zst")

	f, err := os.Create(path)
	require.NoError(t, err)

	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)

	_, err = enc.Write(data)
	require.NoError(t, err)

	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	return path
}

func TestWriteSeed(t *testing.T) {
	setupConfig(t)

	path := emptyImage(t, 256)

	seed := make([]byte, 100*sectorSize)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	limit := uint64(256-64) * sectorSize

	require.NoError(t, writeSeed(path, compress(t, seed), 64*sectorSize, limit))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, seed, contents[64*sectorSize:164*sectorSize])
	assert.Equal(t, make([]byte, 64*sectorSize), contents[:64*sectorSize])

	require.Error(t, writeSeed(path, compress(t, make([]byte, limit+1)), 64*sectorSize, limit))
}

func TestPartitionGuard(t *testing.T) {
	setupConfig(t)

	password := []byte("guarded")

	for _, test := range []struct {
		name  string
		start uint64

		expectedErr error
	}{
		{
			name:  "matching",
			start: 64 * sectorSize,
		},
		{
			name:        "other partition",
			start:       128 * sectorSize,
			expectedErr: volume.ErrVolumeCorrupted,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			d, err := initDisk(emptyImage(t, 512))
			require.NoError(t, err)

			t.Cleanup(func() {
				require.NoError(t, d.Close())
			})

			assert.Equal(t, 1, d.partitionNo)
			assert.EqualValues(t, 64, d.partition.Start())
			// up to the backup partition entries
			assert.EqualValues(t, 512-33-64, d.partition.Media().Blocks())

			require.NoError(t, d.store.Format(password, header.FormatParams{
				VolumeStart:     test.start,
				VolumeSize:      64 * sectorSize,
				EncryptedLength: 16 * sectorSize,
			}))

			guard := d.guard()

			_, err = guard.Unlock([]byte("wrong"))
			require.ErrorIs(t, err, volume.ErrWrongPassword)

			hdr, err := guard.Unlock(password)

			if test.expectedErr != nil {
				require.ErrorIs(t, err, test.expectedErr)
				assert.Nil(t, guard.before)

				_, err = d.store.Header()
				require.ErrorIs(t, err, header.ErrLocked)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, guard.before)

			assert.EqualValues(t, 16*sectorSize, guard.before.EncryptedAreaLength)

			// the snapshot is not affected by later progress
			hdr.EncryptedAreaLength = 32 * sectorSize
			require.NoError(t, guard.Update(hdr))

			assert.EqualValues(t, 16*sectorSize, guard.before.EncryptedAreaLength)
		})
	}
}

func TestOpenDisk(t *testing.T) {
	setupConfig(t)

	path := emptyImage(t, 512)

	d, err := initDisk(path)
	require.NoError(t, err)

	partitionGUID := d.partitionGUID

	_, err = openDisk(path, false)
	require.Error(t, err)

	require.NoError(t, d.Close())

	d, err = openDisk(path, false)
	require.NoError(t, err)

	assert.Equal(t, 1, d.partitionNo)
	assert.Equal(t, partitionGUID, d.partitionGUID)
	assert.EqualValues(t, 64, d.partition.Start())

	require.NoError(t, d.Close())

	// header sector inside the partition entries or the volume
	for _, lba := range []uint64{10, 64, 100} {
		cfg.HeaderLBA = lba

		_, err = openDisk(path, false)
		require.Error(t, err)
	}

	cfg.HeaderLBA = 62

	// no partition table
	_, err = openDisk(emptyImage(t, 512), false)
	require.ErrorIs(t, err, gpt.ErrNoTable)
}
