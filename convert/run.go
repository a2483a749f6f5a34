// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package convert

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/firmware"
	"github.com/YodaRocker/CipherShed/volume"
)

// Decision tells the boot menu what to do after RunConversion.
type Decision int

// Decisions.
const (
	ServiceMenu Decision = iota
	EscPressed
	Reboot
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case ServiceMenu:
		return "service menu"
	case EscPressed:
		return "esc pressed"
	case Reboot:
		return "reboot"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Console is the user interaction used during a conversion.
type Console interface {
	// ReadPassword prompts for the volume password, escaped is set if the user pressed ESC.
	ReadPassword(retry bool) (password []byte, escaped bool, err error)
	// Confirm asks the user to confirm the conversion of the volume.
	Confirm(dir volume.Direction, hdr *volume.Header) (bool, error)
	// ResetInput discards pending keystrokes.
	ResetInput()
	// AbortRequested polls for a pending ESC keystroke without blocking.
	AbortRequested() bool
	// Progress displays the operation progress in per-mille.
	Progress(permille int)
	// Newline terminates the current output line.
	Newline()
}

// HeaderService unlocks and persists the volume header.
type HeaderService interface {
	volume.Persister

	// Unlock returns volume.ErrWrongPassword if the password does not open the header.
	Unlock(password []byte) (*volume.Header, error)
}

// DriverActivator binds the crypto filter driver to the boot controller.
type DriverActivator interface {
	StartConnect(image firmware.Handle) error
}

// System bundles the services a conversion runs against.
type System struct {
	BootServices firmware.BootServices
	Console      Console
	Header       HeaderService
	Driver       DriverActivator

	// Controller is the raw block device holding the volume.
	Controller firmware.Handle
}

// RunConversion unlocks the volume, binds the filter driver and converts the volume in dir.
//
// Once the conversion started the decision is Reboot, even if it failed.
func RunConversion(image firmware.Handle, sys System, dir volume.Direction, opts ...Option) (Decision, error) {
	options := applyOptions(opts...)
	logger := options.Logger.With(zap.Stringer("direction", dir))

	decision := ServiceMenu

	hdr, escaped, err := checkPassword(sys)
	if err != nil {
		return decision, err
	}

	if escaped {
		return EscPressed, nil
	}

	confirmed, err := sys.Console.Confirm(dir, hdr)
	if err != nil {
		return decision, err
	}

	if !confirmed {
		return decision, nil
	}

	if err = sys.Driver.StartConnect(image); err != nil {
		return decision, fmt.Errorf("failed to start filter driver: %w", err)
	}

	child, err := FindFilterChild(sys.BootServices, sys.Controller, logger)
	if err != nil {
		return decision, err
	}

	session, err := OpenSession(sys.BootServices, sys.Controller, child, logger)
	if err != nil {
		return decision, err
	}

	sys.Console.ResetInput()

	if !options.Silent {
		sys.Console.Newline()
	}

	engine := NewEngine(sys.BootServices, sys.Header, WithLogger(logger), WithBufferSectors(options.BufferSectors))

	result, err := engine.Convert(session, dir, hdr, sys.Console.AbortRequested, sys.Console.Progress)

	if !options.Silent {
		sys.Console.Newline()
	}

	if closeErr := session.Close(); closeErr != nil {
		logger.Error("failed to close block I/O session", zap.Error(closeErr))
	}

	decision = Reboot

	logger.Info("conversion finished",
		zap.Uint64("final_lba", result.FinalLBA),
		zap.Int("chunks", result.Chunks),
		zap.Uint64("sectors", result.Sectors),
		zap.Bool("cancelled", result.Cancelled),
		zap.Error(err),
	)

	return decision, err
}

func checkPassword(sys System) (*volume.Header, bool, error) {
	for retry := false; ; retry = true {
		password, escaped, err := sys.Console.ReadPassword(retry)
		if err != nil {
			return nil, false, err
		}

		if escaped {
			return nil, true, nil
		}

		hdr, err := sys.Header.Unlock(password)

		clear(password)

		switch {
		case err == nil:
			return hdr, false, nil
		case errors.Is(err, volume.ErrWrongPassword):
			continue
		default:
			return nil, false, err
		}
	}
}
