// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package filter

import (
	"fmt"

	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/volume"
)

// KeySource provides the key material of an unlocked volume header.
type KeySource interface {
	MasterKey() ([]byte, error)
	Header() (*volume.Header, error)
}

// Loader starts the filter driver on a single controller.
type Loader struct {
	bs         firmware.BootServices
	controller firmware.Handle
	keys       KeySource
	opts       []Option

	driver *Driver
}

// NewLoader creates a loader binding the driver to controller once started.
func NewLoader(bs firmware.BootServices, controller firmware.Handle, keys KeySource, opts ...Option) *Loader {
	return &Loader{
		bs:         bs,
		controller: controller,
		keys:       keys,
		opts:       opts,
	}
}

// StartConnect loads the driver on behalf of image and connects it to the controller.
func (l *Loader) StartConnect(image firmware.Handle) error {
	if l.driver != nil {
		return firmware.ErrAlreadyStarted
	}

	key, err := l.keys.MasterKey()
	if err != nil {
		return err
	}

	defer clear(key)

	hdr, err := l.keys.Header()
	if err != nil {
		return err
	}

	driver, err := NewDriver(l.bs, image, key, hdr.EncryptedAreaStart, l.opts...)
	if err != nil {
		return fmt.Errorf("failed to load filter driver: %w: %w", firmware.ErrLoadError, err)
	}

	if _, err = driver.Connect(l.controller); err != nil {
		return err
	}

	l.driver = driver

	return nil
}

// Stop disconnects the driver if it was started.
func (l *Loader) Stop() error {
	if l.driver == nil {
		return nil
	}

	if err := l.driver.Disconnect(l.controller); err != nil {
		return err
	}

	l.driver = nil

	return nil
}
