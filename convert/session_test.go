// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YodaRocker/CipherShed/convert"
	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/firmware/memfw"
)

func TestSession(t *testing.T) {
	fw := memfw.New()

	parentDisk := memfw.NewRAMDisk(1, 512, 8)
	childDisk := memfw.NewRAMDisk(2, 512, 8)

	parent, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, parentDisk)
	require.NoError(t, err)

	child, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, childDisk)
	require.NoError(t, err)

	session, err := convert.OpenSession(fw, parent, child, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Same(t, parentDisk, session.Parent)
	assert.Same(t, childDisk, session.Child)

	assert.Equal(t, 1, fw.OpenCount(parent, firmware.BlockIOProtocol))
	assert.Equal(t, 1, fw.OpenCount(child, firmware.BlockIOProtocol))

	require.NoError(t, session.Close())

	assert.Zero(t, fw.OpenCount(parent, firmware.BlockIOProtocol))
	assert.Zero(t, fw.OpenCount(child, firmware.BlockIOProtocol))

	// both sides are reported
	err = session.Close()
	require.ErrorIs(t, err, firmware.ErrNotFound)
}

func TestSessionChildOpenFailure(t *testing.T) {
	fw := memfw.New()

	parent, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, memfw.NewRAMDisk(1, 512, 8))
	require.NoError(t, err)

	// child without block I/O
	child, err := fw.InstallProtocol(0, firmware.CallerIDProtocol, struct{}{})
	require.NoError(t, err)

	_, err = convert.OpenSession(fw, parent, child, zaptest.NewLogger(t))
	require.ErrorIs(t, err, convert.ErrProtocolOpenFailed)
	require.ErrorIs(t, err, firmware.ErrUnsupported)

	assert.Zero(t, fw.OpenCount(parent, firmware.BlockIOProtocol))
}

func TestSessionParentOpenFailure(t *testing.T) {
	fw := memfw.New()

	child, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, memfw.NewRAMDisk(1, 512, 8))
	require.NoError(t, err)

	_, err = convert.OpenSession(fw, fw.NewHandle(), child, zaptest.NewLogger(t))
	require.ErrorIs(t, err, convert.ErrProtocolOpenFailed)

	assert.Zero(t, fw.OpenCount(child, firmware.BlockIOProtocol))
}

func TestSessionClosePartialFailure(t *testing.T) {
	fw := memfw.New()

	parent, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, memfw.NewRAMDisk(1, 512, 8))
	require.NoError(t, err)

	child, err := fw.InstallProtocol(0, firmware.BlockIOProtocol, memfw.NewRAMDisk(2, 512, 8))
	require.NoError(t, err)

	session, err := convert.OpenSession(fw, parent, child, zaptest.NewLogger(t))
	require.NoError(t, err)

	// parent released behind the session's back
	require.NoError(t, fw.CloseProtocol(parent, firmware.BlockIOProtocol, parent, parent))

	err = session.Close()
	require.ErrorIs(t, err, firmware.ErrNotFound)

	// the child is still released
	assert.Zero(t, fw.OpenCount(child, firmware.BlockIOProtocol))
}
