// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package filter_test

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/xts"

	"github.com/YodaRocker/CipherShed/filter"
	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/firmware/memfw"
	"github.com/YodaRocker/CipherShed/volume"
)

const (
	sectorSize  = 512
	volumeStart = 64 * sectorSize
)

var key = bytes.Repeat([]byte{0x5a, 0xa5}, filter.KeySize/2)

func setup(t *testing.T) (*memfw.Firmware, *memfw.RAMDisk, firmware.Handle, firmware.Handle) {
	t.Helper()

	fw := memfw.New(memfw.WithLogger(zaptest.NewLogger(t)))

	disk := memfw.NewRAMDisk(1, sectorSize, 128)
	_, err := rand.Read(disk.Bytes())
	require.NoError(t, err)

	controller, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, disk)
	require.NoError(t, err)

	return fw, disk, controller, fw.NewHandle()
}

func TestConnect(t *testing.T) {
	fw, _, controller, image := setup(t)

	driver, err := filter.NewDriver(fw, image, key, volumeStart, filter.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	child, err := driver.Connect(controller)
	require.NoError(t, err)

	_, err = driver.Connect(controller)
	require.ErrorIs(t, err, firmware.ErrAlreadyStarted)

	entries, err := fw.OpenProtocolInformation(controller, firmware.BlockIOProtocol)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, firmware.OpenByDriver, entries[0].Attributes)
	assert.Equal(t, controller, entries[0].ControllerHandle)
	assert.Equal(t, firmware.OpenByChildController, entries[1].Attributes)
	assert.Equal(t, child, entries[1].ControllerHandle)
	assert.Equal(t, image, entries[1].AgentHandle)

	assert.True(t, fw.HasProtocol(child, firmware.CallerIDProtocol))

	iface, err := fw.OpenProtocol(child, firmware.ComponentNameProtocol, child, child, firmware.OpenGetProtocol)
	require.NoError(t, err)

	name, err := firmware.DecodeString(iface.(firmware.ComponentName).DriverName())
	require.NoError(t, err)
	assert.Equal(t, filter.DriverName, name)

	require.NoError(t, fw.CloseProtocol(child, firmware.ComponentNameProtocol, child, child))

	// the controller is owned by the driver now
	_, err = fw.OpenProtocol(controller, firmware.BlockIOProtocol, fw.NewHandle(), controller, firmware.OpenByDriver)
	require.ErrorIs(t, err, firmware.ErrAccessDenied)

	require.NoError(t, driver.Disconnect(controller))

	assert.False(t, fw.HasProtocol(child, firmware.BlockIOProtocol))
	assert.Equal(t, 0, fw.OpenCount(controller, firmware.BlockIOProtocol))

	require.ErrorIs(t, driver.Disconnect(controller), filter.ErrNotConnected)
}

func TestView(t *testing.T) {
	fw, disk, controller, image := setup(t)

	original := bytes.Clone(disk.Bytes())

	driver, err := filter.NewDriver(fw, image, key, volumeStart, filter.WithChildMediaID(0x42))
	require.NoError(t, err)

	child, err := driver.Connect(controller)
	require.NoError(t, err)

	iface, err := fw.OpenProtocol(child, firmware.BlockIOProtocol, child, child, firmware.OpenGetProtocol)
	require.NoError(t, err)

	view := iface.(firmware.BlockIO)

	assert.EqualValues(t, 0x42, view.Media().MediaID)
	assert.Equal(t, disk.Media().LastBlock, view.Media().LastBlock)

	// the parent media ID is not accepted by the view
	require.ErrorIs(t, view.ReadBlocks(1, 0, make([]byte, sectorSize)), firmware.ErrMediaChanged)

	cipher, err := xts.NewCipher(aes.NewCipher, key)
	require.NoError(t, err)

	buf := make([]byte, 4*sectorSize)
	require.NoError(t, view.ReadBlocks(0x42, 10, buf))

	for i := range 4 {
		expected := make([]byte, sectorSize)
		cipher.Encrypt(expected, original[(10+i)*sectorSize:(11+i)*sectorSize], uint64(volumeStart/sectorSize+10+i))

		assert.Equal(t, expected, buf[i*sectorSize:(i+1)*sectorSize], "sector %d", 10+i)
	}

	// reads do not modify the parent
	assert.Equal(t, original, disk.Bytes())

	// encrypt sectors in place: read the view, write the parent
	require.NoError(t, disk.WriteBlocks(1, 10, buf))

	// decrypt them back: read the parent, write the view
	ciphertext := make([]byte, len(buf))
	require.NoError(t, disk.ReadBlocks(1, 10, ciphertext))

	written := bytes.Clone(ciphertext)
	require.NoError(t, view.WriteBlocks(0x42, 10, ciphertext))

	assert.Equal(t, written, ciphertext, "caller buffer must not be modified")
	assert.Equal(t, original, disk.Bytes())

	require.NoError(t, fw.CloseProtocol(child, firmware.BlockIOProtocol, child, child))
	require.NoError(t, driver.Disconnect(controller))
}

func TestNewDriverKeySize(t *testing.T) {
	fw := memfw.New()

	_, err := filter.NewDriver(fw, fw.NewHandle(), make([]byte, 32), 0)
	require.Error(t, err)
}

type keySource struct {
	hdr volume.Header
	key []byte
}

func (k keySource) MasterKey() ([]byte, error) {
	if k.key != nil {
		return bytes.Clone(k.key), nil
	}

	return bytes.Clone(key), nil
}

func (k keySource) Header() (*volume.Header, error) {
	return &k.hdr, nil
}

func TestLoader(t *testing.T) {
	fw, _, controller, image := setup(t)

	loader := filter.NewLoader(fw, controller, keySource{hdr: volume.Header{EncryptedAreaStart: volumeStart, VolumeSize: 128 * sectorSize}})

	require.NoError(t, loader.StartConnect(image))
	require.ErrorIs(t, loader.StartConnect(image), firmware.ErrAlreadyStarted)

	assert.Equal(t, 2, fw.OpenCount(controller, firmware.BlockIOProtocol))

	require.NoError(t, loader.Stop())
	require.NoError(t, loader.Stop())

	assert.Equal(t, 0, fw.OpenCount(controller, firmware.BlockIOProtocol))
}

func TestLoaderLoadError(t *testing.T) {
	fw, _, controller, image := setup(t)

	loader := filter.NewLoader(fw, controller, keySource{
		hdr: volume.Header{EncryptedAreaStart: volumeStart, VolumeSize: 128 * sectorSize},
		key: make([]byte, 32),
	})

	err := loader.StartConnect(image)
	require.ErrorIs(t, err, firmware.ErrLoadError)

	assert.Zero(t, fw.OpenCount(controller, firmware.BlockIOProtocol))

	// nothing to stop
	require.NoError(t, loader.Stop())
}
