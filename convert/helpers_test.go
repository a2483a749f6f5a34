// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert_test

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/xts"

	"github.com/YodaRocker/CipherShed/block"
	"github.com/YodaRocker/CipherShed/convert"
	"github.com/YodaRocker/CipherShed/filter"
	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/firmware/memfw"
	"github.com/YodaRocker/CipherShed/header"
	"github.com/YodaRocker/CipherShed/volume"
)

const (
	sectorSize  = 512
	headerLBA   = 62
	volumeStart = 64
)

var (
	password  = []byte("changeme")
	masterKey = bytes.Repeat([]byte{0x01, 0x23, 0x45, 0x67}, 16)
)

// harness is a disk with a formatted volume header and a partition holding the volume.
type harness struct {
	fw         *memfw.Firmware
	disk       *memfw.RAMDisk
	controller firmware.Handle
	image      firmware.Handle
	store      *header.Store
	loader     *filter.Loader

	volumeSectors uint64
	plaintext     []byte
}

func newHarness(t *testing.T, volumeSectors uint64, opts ...memfw.Option) *harness {
	t.Helper()

	fw := memfw.New(append([]memfw.Option{memfw.WithLogger(zaptest.NewLogger(t))}, opts...)...)

	disk := memfw.NewRAMDisk(1, sectorSize, volumeStart+volumeSectors+34)

	part, err := block.NewWindow(disk, 2, volumeStart, volumeSectors)
	require.NoError(t, err)

	volumeBytes := disk.Bytes()[volumeStart*sectorSize : (volumeStart+volumeSectors)*sectorSize]

	_, err = rand.Read(volumeBytes)
	require.NoError(t, err)

	store := header.New(disk,
		header.WithLogger(zaptest.NewLogger(t)),
		header.WithIterations(1000),
		header.WithHeaderLBA(headerLBA),
	)

	require.NoError(t, store.Format(password, header.FormatParams{
		VolumeStart: volumeStart * sectorSize,
		VolumeSize:  volumeSectors * sectorSize,
		MasterKey:   masterKey,
	}))

	controller, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, part)
	require.NoError(t, err)

	return &harness{
		fw:            fw,
		disk:          disk,
		controller:    controller,
		image:         fw.NewHandle(),
		store:         store,
		loader:        filter.NewLoader(fw, controller, store, filter.WithLogger(zaptest.NewLogger(t))),
		volumeSectors: volumeSectors,
		plaintext:     bytes.Clone(volumeBytes),
	}
}

// contents returns the current contents of the volume.
func (h *harness) contents() []byte {
	return h.disk.Bytes()[volumeStart*sectorSize : (volumeStart+h.volumeSectors)*sectorSize]
}

// ciphertext returns the volume contents with sectors [0, encrypted) encrypted.
func (h *harness) ciphertext(t *testing.T, encrypted uint64) []byte {
	t.Helper()

	cipher, err := xts.NewCipher(aes.NewCipher, masterKey)
	require.NoError(t, err)

	out := bytes.Clone(h.plaintext)

	for i := range encrypted {
		sector := out[i*sectorSize : (i+1)*sectorSize]
		cipher.Encrypt(sector, sector, volumeStart+i)
	}

	return out
}

// persisted reads the persisted header with a fresh store.
func (h *harness) persisted(t *testing.T) *volume.Header {
	t.Helper()

	hdr, err := header.New(h.disk, header.WithIterations(1000), header.WithHeaderLBA(headerLBA)).Unlock(password)
	require.NoError(t, err)

	return hdr
}

// session binds the filter driver and opens the block I/O session directly.
func (h *harness) session(t *testing.T) *convert.Session {
	t.Helper()

	require.NoError(t, h.loader.StartConnect(h.image))

	child, err := convert.FindFilterChild(h.fw, h.controller, zaptest.NewLogger(t))
	require.NoError(t, err)

	session, err := convert.OpenSession(h.fw, h.controller, child, zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, session.Close())
		require.NoError(t, h.loader.Stop())
	})

	return session
}

// fakeConsole scripts the user.
type fakeConsole struct {
	// passwords are returned in order, escKey stands for ESC.
	passwords []string
	confirm   bool
	// abortAfter requests an abort on the n-th poll (0 = never).
	abortAfter int

	prompts  []bool
	polls    int
	progress []int
	resets   int
	newlines int
	asked    bool
}

const escKey = "\x1b"

func (c *fakeConsole) ReadPassword(retry bool) ([]byte, bool, error) {
	c.prompts = append(c.prompts, retry)

	if len(c.passwords) == 0 {
		return nil, true, nil
	}

	pwd := c.passwords[0]
	c.passwords = c.passwords[1:]

	if pwd == escKey {
		return nil, true, nil
	}

	return []byte(pwd), false, nil
}

func (c *fakeConsole) Confirm(volume.Direction, *volume.Header) (bool, error) {
	c.asked = true

	return c.confirm, nil
}

func (c *fakeConsole) ResetInput() {
	c.resets++
}

func (c *fakeConsole) AbortRequested() bool {
	c.polls++

	return c.abortAfter > 0 && c.polls >= c.abortAfter
}

func (c *fakeConsole) Progress(permille int) {
	c.progress = append(c.progress, permille)
}

func (c *fakeConsole) Newline() {
	c.newlines++
}

// countingActivator records driver activation.
type countingActivator struct {
	convert.DriverActivator

	calls int
}

func (a *countingActivator) StartConnect(image firmware.Handle) error {
	a.calls++

	return a.DriverActivator.StartConnect(image)
}

func (h *harness) system(console convert.Console) (convert.System, *countingActivator) {
	activator := &countingActivator{DriverActivator: h.loader}

	return convert.System{
		BootServices: h.fw,
		Console:      console,
		Header:       h.store,
		Driver:       activator,
		Controller:   h.controller,
	}, activator
}
