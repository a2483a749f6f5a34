// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package firmware

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// EncodeString converts s to a NUL-terminated UCS-2 (UTF-16LE) firmware string.
func EncodeString(s string) ([]byte, error) {
	utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	buf, err := utf16.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}

	return append(buf, 0, 0), nil
}

// DecodeString converts a UCS-2 firmware string to Go, stopping at the first NUL character.
func DecodeString(b []byte) (string, error) {
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]

			break
		}
	}

	utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	s, err := utf16.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}

	return string(bytes.TrimRight(s, "\x00")), nil
}
