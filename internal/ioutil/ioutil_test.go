// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ioutil_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YodaRocker/CipherShed/internal/ioutil"
)

func TestReadWriteFullAt(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "image.raw"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, f.Close())
	})

	data := bytes.Repeat([]byte("sector"), 100)

	require.NoError(t, ioutil.WriteFullAt(f, data, 512))

	buf := make([]byte, len(data))
	require.NoError(t, ioutil.ReadFullAt(f, buf, 512))
	assert.Equal(t, data, buf)

	err = ioutil.ReadFullAt(f, buf, 1024)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
