// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block_test

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/freddierice/go-losetup/v2"
	"github.com/siderolabs/go-cmd/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/YodaRocker/CipherShed/block"
)

const (
	MiB = 1024 * 1024
)

func TestDevice(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("skipping test; must be root")
	}

	rawImage := createImage(t, 64*MiB)

	loDev, err := losetup.Attach(rawImage, 0, false)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, loDev.Detach())
	})

	loReadOnly, err := losetup.Attach(rawImage, 0, true)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, loReadOnly.Detach())
	})

	devPath := loDev.Path()

	devWhole, err := block.NewFromPath(devPath, block.OpenForWrite())
	require.NoError(t, err)

	devWhole2, err := block.NewFromPath(devPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, devWhole.Close())
		assert.NoError(t, devWhole2.Close())
	})

	t.Run("size", func(t *testing.T) {
		size, err := devWhole.GetSize()
		require.NoError(t, err)

		assert.EqualValues(t, 64*MiB, size)
		assert.EqualValues(t, 64*MiB/512-1, devWhole.Media().LastBlock)
	})

	t.Run("sector size", func(t *testing.T) {
		out, err := cmd.Run("blockdev", "--getss", devPath)
		if err != nil {
			t.Skipf("blockdev not available: %v", err)
		}

		expected, err := strconv.Atoi(strings.TrimSpace(out))
		require.NoError(t, err)

		assert.EqualValues(t, expected, devWhole.GetSectorSize())
		assert.EqualValues(t, expected, devWhole.Media().BlockSize)
	})

	t.Run("block size override", func(t *testing.T) {
		dev, err := block.NewFromPath(devPath, block.WithBlockSize(4096))
		require.NoError(t, err)

		t.Cleanup(func() {
			assert.NoError(t, dev.Close())
		})

		// the kernel sector size wins over the image option
		assert.EqualValues(t, dev.GetSectorSize(), dev.Media().BlockSize)
		assert.EqualValues(t, devWhole.Media().LastBlock, dev.Media().LastBlock)

		// not validated against a device that ignores it
		dev2, err := block.NewFromPath(devPath, block.WithBlockSize(1000))
		require.NoError(t, err)
		assert.NoError(t, dev2.Close())
	})

	t.Run("lock try lock unlock", func(t *testing.T) {
		require.NoError(t, devWhole.Lock(true))

		err := devWhole2.TryLock(false)
		require.Error(t, err)
		require.ErrorIs(t, err, unix.EWOULDBLOCK)

		require.NoError(t, devWhole.Unlock())

		require.NoError(t, devWhole2.TryLock(false))
		require.NoError(t, devWhole2.Unlock())
	})

	t.Run("read only", func(t *testing.T) {
		readOnly, err := devWhole.IsReadOnly()
		require.NoError(t, err)

		assert.False(t, readOnly)

		devReadOnly, err := block.NewFromPath(loReadOnly.Path())
		require.NoError(t, err)

		t.Cleanup(func() {
			assert.NoError(t, devReadOnly.Close())
		})

		readOnly, err = devReadOnly.IsReadOnly()
		require.NoError(t, err)
		assert.True(t, readOnly)
		assert.True(t, devReadOnly.Media().ReadOnly)
	})
}
