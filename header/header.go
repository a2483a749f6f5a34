// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package header reads and writes the password protected volume header.
//
// The header occupies one sector of the whole disk. The payload is sealed with
// XChaCha20-Poly1305 under a key derived from the password with PBKDF2-HMAC-SHA512;
// the salt is used as additional authenticated data.
package header

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/internal/hdrstructs"
	"github.com/YodaRocker/CipherShed/volume"
)

// Common errors.
var (
	ErrWrongPassword = volume.ErrWrongPassword
	ErrLocked        = errors.New("volume header is locked")
)

// FormatParams describes a new volume header.
type FormatParams struct {
	// VolumeStart is the disk-relative offset of the volume (bytes).
	VolumeStart uint64
	// VolumeSize is the size of the volume (bytes).
	VolumeSize uint64
	// EncryptedLength is the initial encrypted length (bytes), usually zero.
	EncryptedLength uint64

	// VolumeUUID is generated if not set.
	VolumeUUID uuid.UUID
	// MasterKey is generated if not set.
	MasterKey []byte
}

// Store is the volume header of a disk.
type Store struct {
	dev     firmware.BlockIO
	options Options

	key     []byte
	salt    []byte
	payload hdrstructs.Payload
}

// New creates a header store on dev (the whole disk).
func New(dev firmware.BlockIO, opts ...Option) *Store {
	options := Options{
		Logger:     zap.NewNop(),
		Iterations: DefaultIterations,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Store{
		dev:     dev,
		options: options,
	}
}

func (s *Store) deriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, s.options.Iterations, chacha20poly1305.KeySize, sha512.New)
}

func (s *Store) readSector() ([]byte, error) {
	media := s.dev.Media()

	if media.BlockSize < hdrstructs.SECTOR_SIZE {
		return nil, fmt.Errorf("block size %d too small for volume header", media.BlockSize)
	}

	buf := make([]byte, media.BlockSize)

	if err := s.dev.ReadBlocks(media.MediaID, s.options.HeaderLBA, buf); err != nil {
		return nil, fmt.Errorf("failed to read volume header: %w", err)
	}

	return buf, nil
}

// Format writes a new header sealed with password, leaving the store unlocked.
func (s *Store) Format(password []byte, params FormatParams) error {
	sectorSize := s.dev.Media().BlockSize

	if params.VolumeStart%uint64(sectorSize) != 0 || params.VolumeSize%uint64(sectorSize) != 0 {
		return fmt.Errorf("volume geometry not aligned to %d byte sectors", sectorSize)
	}

	if params.EncryptedLength > params.VolumeSize {
		return fmt.Errorf("%w: encrypted length exceeds volume size", volume.ErrVolumeCorrupted)
	}

	if params.VolumeUUID == uuid.Nil {
		params.VolumeUUID = uuid.New()
	}

	masterKey := params.MasterKey
	if masterKey == nil {
		masterKey = make([]byte, hdrstructs.MASTER_KEY_SIZE)

		if _, err := rand.Read(masterKey); err != nil {
			return fmt.Errorf("failed to generate master key: %w", err)
		}
	}

	if len(masterKey) != hdrstructs.MASTER_KEY_SIZE {
		return fmt.Errorf("master key must be %d bytes", hdrstructs.MASTER_KEY_SIZE)
	}

	payload := hdrstructs.Payload(make([]byte, hdrstructs.PAYLOAD_SIZE))
	payload.Put_magic(hdrstructs.Magic)
	payload.Put_version(hdrstructs.Version)
	payload.Put_min_version(hdrstructs.Version)
	payload.Put_volume_size(params.VolumeSize)
	payload.Put_encrypted_area_start(params.VolumeStart)
	payload.Put_encrypted_area_length(params.EncryptedLength)
	payload.Put_sector_size(sectorSize)
	payload.Put_flags(hdrstructs.FlagSystemEncryption)
	payload.Put_volume_uuid(params.VolumeUUID[:])
	payload.Put_master_key(masterKey)

	salt := make([]byte, hdrstructs.SALT_SIZE)

	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	s.Lock()

	s.salt = salt
	s.key = s.deriveKey(password, salt)
	s.payload = payload

	s.options.Logger.Debug("formatting volume header",
		zap.Stringer("volume_uuid", params.VolumeUUID),
		zap.Uint64("volume_start", params.VolumeStart),
		zap.Uint64("volume_size", params.VolumeSize),
	)

	return s.write()
}

// Unlock decrypts the header with password.
//
// A wrong password and a missing header are indistinguishable; both return ErrWrongPassword.
func (s *Store) Unlock(password []byte) (*volume.Header, error) {
	buf, err := s.readSector()
	if err != nil {
		return nil, err
	}

	sector := hdrstructs.Sector(buf[:hdrstructs.SECTOR_SIZE])

	salt := slices.Clone(sector.Get_salt())
	key := s.deriveKey(password, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, sector.Get_nonce(), sector.Get_sealed(), salt)
	if err != nil {
		return nil, ErrWrongPassword
	}

	payload := hdrstructs.Payload(plain)
	if !payload.IsValid() {
		return nil, ErrWrongPassword
	}

	if payload.Get_encrypted_area_length() > payload.Get_volume_size() {
		return nil, fmt.Errorf("%w: encrypted length exceeds volume size", volume.ErrVolumeCorrupted)
	}

	if payload.Get_sector_size() != s.dev.Media().BlockSize {
		return nil, fmt.Errorf("%w: header sector size %d, device %d", volume.ErrVolumeCorrupted, payload.Get_sector_size(), s.dev.Media().BlockSize)
	}

	s.Lock()

	s.salt = salt
	s.key = key
	s.payload = payload

	hdr := s.volumeHeader()

	s.options.Logger.Debug("volume header unlocked",
		zap.Uint64("encrypted_area_start", hdr.EncryptedAreaStart),
		zap.Uint64("encrypted_area_length", hdr.EncryptedAreaLength),
		zap.Uint64("volume_size", hdr.VolumeSize),
	)

	return hdr, nil
}

func (s *Store) volumeHeader() *volume.Header {
	return &volume.Header{
		EncryptedAreaStart:  s.payload.Get_encrypted_area_start(),
		EncryptedAreaLength: s.payload.Get_encrypted_area_length(),
		VolumeSize:          s.payload.Get_volume_size(),
	}
}

// Update persists the conversion state of hdr.
//
// Only EncryptedAreaLength may change; the volume geometry is fixed at format time.
func (s *Store) Update(hdr *volume.Header) error {
	if s.payload == nil {
		return ErrLocked
	}

	if hdr.EncryptedAreaStart != s.payload.Get_encrypted_area_start() || hdr.VolumeSize != s.payload.Get_volume_size() {
		return fmt.Errorf("%w: volume geometry changed", volume.ErrVolumeCorrupted)
	}

	if err := hdr.Validate(); err != nil {
		return err
	}

	previous := s.payload.Get_encrypted_area_length()

	s.payload.Put_encrypted_area_length(hdr.EncryptedAreaLength)

	if err := s.write(); err != nil {
		s.payload.Put_encrypted_area_length(previous)

		return err
	}

	return nil
}

func (s *Store) write() error {
	buf, err := s.readSector()
	if err != nil {
		return err
	}

	sector := hdrstructs.Sector(buf[:hdrstructs.SECTOR_SIZE])

	nonce := make([]byte, hdrstructs.NONCE_SIZE)

	if _, err = rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}

	sector.Put_salt(s.salt)
	sector.Put_nonce(nonce)
	sector.Put_sealed(aead.Seal(nil, nonce, s.payload, s.salt))

	media := s.dev.Media()

	if err = s.dev.WriteBlocks(media.MediaID, s.options.HeaderLBA, buf); err != nil {
		return fmt.Errorf("failed to write volume header: %w", err)
	}

	if err = s.dev.FlushBlocks(); err != nil {
		return fmt.Errorf("failed to flush volume header: %w", err)
	}

	return nil
}

// Header returns the current unlocked volume header.
func (s *Store) Header() (*volume.Header, error) {
	if s.payload == nil {
		return nil, ErrLocked
	}

	return s.volumeHeader(), nil
}

// MasterKey returns a copy of the volume master key.
func (s *Store) MasterKey() ([]byte, error) {
	if s.payload == nil {
		return nil, ErrLocked
	}

	return slices.Clone(s.payload.Get_master_key()), nil
}

// VolumeUUID returns the volume identifier.
func (s *Store) VolumeUUID() (uuid.UUID, error) {
	if s.payload == nil {
		return uuid.Nil, ErrLocked
	}

	return uuid.FromBytes(s.payload.Get_volume_uuid())
}

// Lock wipes the key material from memory.
func (s *Store) Lock() {
	clear(s.key)
	clear(s.payload)

	s.key = nil
	s.salt = nil
	s.payload = nil
}
