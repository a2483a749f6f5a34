// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package filter

import (
	"golang.org/x/crypto/xts"

	"github.com/YodaRocker/CipherShed/firmware"
)

// View is the BlockIO exposed on the child handle.
//
// Reads return the parent's sectors encrypted, writes store the given sectors decrypted.
// Copying from the view to the parent therefore encrypts the volume in place,
// copying from the parent to the view decrypts it.
type View struct {
	parent    firmware.BlockIO
	cipher    *xts.Cipher
	tweakBase uint64
	media     firmware.Media
}

var _ firmware.BlockIO = (*View)(nil)

// Media implements firmware.BlockIO.
func (v *View) Media() *firmware.Media {
	return &v.media
}

// ReadBlocks implements firmware.BlockIO.
func (v *View) ReadBlocks(mediaID uint32, lba uint64, buf []byte) error {
	if err := firmware.ValidateTransfer(&v.media, mediaID, lba, buf); err != nil {
		return err
	}

	if err := v.parent.ReadBlocks(v.parent.Media().MediaID, lba, buf); err != nil {
		return err
	}

	v.transform(lba, buf, buf, v.cipher.Encrypt)

	return nil
}

// WriteBlocks implements firmware.BlockIO.
//
// The caller's buffer is left untouched.
func (v *View) WriteBlocks(mediaID uint32, lba uint64, buf []byte) error {
	if err := firmware.ValidateTransfer(&v.media, mediaID, lba, buf); err != nil {
		return err
	}

	if v.media.ReadOnly {
		return firmware.ErrWriteProtected
	}

	plain := make([]byte, len(buf))

	v.transform(lba, plain, buf, v.cipher.Decrypt)

	return v.parent.WriteBlocks(v.parent.Media().MediaID, lba, plain)
}

// FlushBlocks implements firmware.BlockIO.
func (v *View) FlushBlocks() error {
	return v.parent.FlushBlocks()
}

func (v *View) transform(lba uint64, dst, src []byte, fn func(dst, src []byte, sectorNum uint64)) {
	blockSize := int(v.media.BlockSize)

	for i := 0; i < len(src); i += blockSize {
		fn(dst[i:i+blockSize], src[i:i+blockSize], v.tweakBase+lba+uint64(i/blockSize))
	}
}
