// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package filter implements the crypto filter driver used to convert a volume in place.
//
// The driver binds to a controller exposing BlockIO and creates a single child
// controller with its own BlockIO, tagged with firmware.CallerIDProtocol.
package filter

import (
	"crypto/aes"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/xts"

	"github.com/YodaRocker/CipherShed/firmware"
)

// DriverName is reported through the component name protocol.
const DriverName = "CipherShed Crypto Driver"

// KeySize is the XTS-AES-256 key size.
const KeySize = 64

// Common errors.
var (
	ErrNotConnected = errors.New("driver is not connected to the controller")
)

// CallerID is the marker interface installed on child handles.
type CallerID struct {
	Parent firmware.Handle
}

type componentName struct {
	name []byte
}

func (c componentName) DriverName() []byte {
	return c.name
}

// Options configures the driver.
type Options struct {
	Logger *zap.Logger

	// ChildMediaID is the media identity of the child view.
	ChildMediaID uint32
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithChildMediaID sets the media identity of child views.
func WithChildMediaID(id uint32) Option {
	return func(o *Options) {
		o.ChildMediaID = id
	}
}

// Driver is the crypto filter driver.
type Driver struct {
	bs      firmware.BootServices
	image   firmware.Handle
	cipher  *xts.Cipher
	options Options

	// volumeStart is the disk-relative byte offset of the controller's LBA 0.
	volumeStart uint64

	children map[firmware.Handle]firmware.Handle
}

// NewDriver creates a driver instance for image with the given XTS key.
func NewDriver(bs firmware.BootServices, image firmware.Handle, key []byte, volumeStart uint64, opts ...Option) (*Driver, error) {
	options := Options{
		Logger:       zap.NewNop(),
		ChildMediaID: 0xC5,
	}

	for _, opt := range opts {
		opt(&options)
	}

	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}

	cipher, err := xts.NewCipher(aes.NewCipher, key)
	if err != nil {
		return nil, err
	}

	return &Driver{
		bs:          bs,
		image:       image,
		cipher:      cipher,
		options:     options,
		volumeStart: volumeStart,
		children:    map[firmware.Handle]firmware.Handle{},
	}, nil
}

// Connect binds the driver to controller and returns the child handle.
func (d *Driver) Connect(controller firmware.Handle) (child firmware.Handle, err error) {
	if _, ok := d.children[controller]; ok {
		return 0, firmware.ErrAlreadyStarted
	}

	iface, err := d.bs.OpenProtocol(controller, firmware.BlockIOProtocol, d.image, controller, firmware.OpenByDriver)
	if err != nil {
		return 0, fmt.Errorf("failed to open controller block I/O: %w", err)
	}

	defer func() {
		if err != nil {
			d.bs.CloseProtocol(controller, firmware.BlockIOProtocol, d.image, controller) //nolint:errcheck
		}
	}()

	parentIO, ok := iface.(firmware.BlockIO)
	if !ok {
		return 0, firmware.ErrUnsupported
	}

	pm := parentIO.Media()

	if pm.BlockSize%16 != 0 || d.volumeStart%uint64(pm.BlockSize) != 0 {
		return 0, fmt.Errorf("%w: block size %d", firmware.ErrUnsupported, pm.BlockSize)
	}

	view := &View{
		parent:    parentIO,
		cipher:    d.cipher,
		tweakBase: d.volumeStart / uint64(pm.BlockSize),
		media:     *pm,
	}

	view.media.MediaID = d.options.ChildMediaID

	name, err := firmware.EncodeString(DriverName)
	if err != nil {
		return 0, err
	}

	child, err = d.bs.InstallProtocol(0, firmware.BlockIOProtocol, view)
	if err != nil {
		return 0, fmt.Errorf("failed to install child block I/O: %w", err)
	}

	defer func() {
		if err != nil {
			d.uninstall(child)
		}
	}()

	if _, err = d.bs.InstallProtocol(child, firmware.CallerIDProtocol, &CallerID{Parent: controller}); err != nil {
		return 0, fmt.Errorf("failed to install caller ID: %w", err)
	}

	if _, err = d.bs.InstallProtocol(child, firmware.ComponentNameProtocol, componentName{name: name}); err != nil {
		return 0, fmt.Errorf("failed to install component name: %w", err)
	}

	if _, err = d.bs.OpenProtocol(controller, firmware.BlockIOProtocol, d.image, child, firmware.OpenByChildController); err != nil {
		return 0, fmt.Errorf("failed to attach child controller: %w", err)
	}

	d.children[controller] = child

	d.options.Logger.Debug("filter driver connected",
		zap.Uintptr("controller", uintptr(controller)),
		zap.Uintptr("child", uintptr(child)),
		zap.Uint64("tweak_base", view.tweakBase),
	)

	return child, nil
}

func (d *Driver) uninstall(child firmware.Handle) {
	for _, protocol := range []firmware.GUID{firmware.ComponentNameProtocol, firmware.CallerIDProtocol, firmware.BlockIOProtocol} {
		if err := d.bs.UninstallProtocol(child, protocol); err != nil && !errors.Is(err, firmware.ErrUnsupported) {
			d.options.Logger.Warn("failed to uninstall child protocol", zap.Stringer("protocol", protocol), zap.Error(err))
		}
	}
}

// Disconnect removes the child of controller and releases the controller.
func (d *Driver) Disconnect(controller firmware.Handle) error {
	child, ok := d.children[controller]
	if !ok {
		return ErrNotConnected
	}

	if err := d.bs.CloseProtocol(controller, firmware.BlockIOProtocol, d.image, child); err != nil {
		return fmt.Errorf("failed to detach child controller: %w", err)
	}

	d.uninstall(child)

	delete(d.children, controller)

	if err := d.bs.CloseProtocol(controller, firmware.BlockIOProtocol, d.image, controller); err != nil {
		return fmt.Errorf("failed to close controller block I/O: %w", err)
	}

	return nil
}
