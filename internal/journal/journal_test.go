// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package journal_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YodaRocker/CipherShed/internal/journal"
)

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := journal.Open(path)
	require.NoError(t, err)

	vol1 := uuid.MustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	vol2 := uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")

	last, err := j.Last(vol1)
	require.NoError(t, err)
	assert.Nil(t, last)

	now := time.Now().UTC().Truncate(time.Second)

	seq, err := j.Append(vol1, journal.Record{
		Time:         now,
		Direction:    "encrypt",
		Decision:     "reboot",
		LengthBefore: 0,
		LengthAfter:  4096,
		VolumeSize:   1 << 20,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	seq, err = j.Append(vol1, journal.Record{
		Time:         now.Add(time.Minute),
		Direction:    "encrypt",
		Decision:     "reboot",
		Error:        "block I/O failure",
		LengthBefore: 4096,
		LengthAfter:  8192,
		VolumeSize:   1 << 20,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)

	_, err = j.Append(vol2, journal.Record{Time: now, Direction: "decrypt", Decision: "esc pressed"})
	require.NoError(t, err)

	require.NoError(t, j.Close())

	// reopen
	j, err = journal.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})

	records, err := j.List(vol1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.EqualValues(t, 1, records[0].Sequence)
	assert.True(t, now.Equal(records[0].Time))
	assert.EqualValues(t, 4096, records[0].LengthAfter)
	assert.Equal(t, "block I/O failure", records[1].Error)

	last, err = j.Last(vol1)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.EqualValues(t, 2, last.Sequence)
	assert.EqualValues(t, 8192, last.LengthAfter)

	records, err = j.List(vol2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "esc pressed", records[0].Decision)

	records, err = j.List(uuid.New())
	require.NoError(t, err)
	assert.Empty(t, records)
}
