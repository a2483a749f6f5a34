// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package console implements the conversion user interface on a text terminal.
package console

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/YodaRocker/CipherShed/volume"
)

// MaxPasswordLength is the maximum number of password characters accepted.
const MaxPasswordLength = 64

const (
	keyInterrupt = 0x03
	keyBackspace = 0x08
	keyEsc       = 0x1b
	keyDelete    = 0x7f
)

// Options configures the terminal.
type Options struct {
	Logger *zap.Logger

	// Silent suppresses decorative output.
	Silent bool
	// PasswordAsterisk echoes an asterisk for every password character.
	PasswordAsterisk bool
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithSilent suppresses decorative output.
func WithSilent(silent bool) Option {
	return func(o *Options) {
		o.Silent = silent
	}
}

// WithPasswordAsterisk enables password echo as asterisks.
func WithPasswordAsterisk(enable bool) Option {
	return func(o *Options) {
		o.PasswordAsterisk = enable
	}
}

// Terminal reads keystrokes from in and writes to out.
//
// If in is a terminal it is switched to raw mode until Close.
type Terminal struct {
	out     io.Writer
	options Options

	fd    int
	state *term.State

	keys    chan byte
	readErr error
	lastCR  bool

	dir volume.Direction
	bar *progressbar.ProgressBar
}

// New starts reading keystrokes from in.
func New(in io.Reader, out io.Writer, opts ...Option) (*Terminal, error) {
	options := Options{
		Logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	t := &Terminal{
		out:     out,
		options: options,
		fd:      -1,
		keys:    make(chan byte, 256),
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, fmt.Errorf("failed to switch terminal to raw mode: %w", err)
		}

		t.fd = int(f.Fd())
		t.state = state
	}

	go t.readLoop(in)

	return t, nil
}

// Close restores the terminal state.
func (t *Terminal) Close() error {
	if t.state == nil {
		return nil
	}

	return term.Restore(t.fd, t.state)
}

func (t *Terminal) readLoop(in io.Reader) {
	buf := make([]byte, 64)

	for {
		n, err := in.Read(buf)

		for _, b := range buf[:n] {
			t.keys <- b
		}

		if err != nil {
			t.readErr = err

			close(t.keys)

			return
		}
	}
}

func (t *Terminal) key() (byte, error) {
	b, ok := <-t.keys
	if !ok {
		return 0, t.readErr
	}

	return b, nil
}

func (t *Terminal) print(s string) {
	if _, err := io.WriteString(t.out, s); err != nil {
		t.options.Logger.Debug("console write failed", zap.Error(err))
	}
}

// ReadPassword prompts for the volume password.
//
// ESC aborts the prompt. Input ending without a line terminator is accepted as the password.
func (t *Terminal) ReadPassword(retry bool) ([]byte, bool, error) {
	if !t.options.Silent && !retry {
		t.print("\r\n\n ")
	}

	if retry {
		t.print("\r\nWrong password. ")
	}

	t.print("Enter password: ")

	password := make([]byte, 0, MaxPasswordLength)

	for {
		b, err := t.key()
		if err != nil {
			if errors.Is(err, io.EOF) && len(password) > 0 {
				return password, false, nil
			}

			return nil, false, err
		}

		lastCR := t.lastCR
		t.lastCR = b == '\r'

		switch {
		case b == keyEsc || b == keyInterrupt:
			clear(password)
			t.print("\r\n")

			return nil, true, nil
		case b == '\n' && lastCR:
		case b == '\r' || b == '\n':
			t.print("\r\n")

			return password, false, nil
		case b == keyBackspace || b == keyDelete:
			if len(password) > 0 {
				password[len(password)-1] = 0
				password = password[:len(password)-1]

				if t.options.PasswordAsterisk {
					t.print("\b \b")
				}
			}
		case b >= 0x20 && b < keyDelete:
			if len(password) == MaxPasswordLength {
				continue
			}

			password = append(password, b)

			if t.options.PasswordAsterisk {
				t.print("*")
			}
		}
	}
}

// Confirm shows the volume state and asks for a y/n answer.
func (t *Terminal) Confirm(dir volume.Direction, hdr *volume.Header) (bool, error) {
	t.dir = dir

	switch {
	case hdr.IsFullyEncrypted():
		t.print(fmt.Sprintf("\r\nVolume size %s, fully encrypted.\r\n", humanize.IBytes(hdr.VolumeSize)))
	default:
		percent := 0
		if hdr.VolumeSize > 0 {
			percent = int(hdr.EncryptedAreaLength * 100 / hdr.VolumeSize)
		}

		t.print(fmt.Sprintf("\r\nVolume size %s, %s encrypted (%d%%).\r\n",
			humanize.IBytes(hdr.VolumeSize), humanize.IBytes(hdr.EncryptedAreaLength), percent))
	}

	t.print(fmt.Sprintf("Do you want to %s the volume? [y/n] ", dir))

	for {
		b, err := t.key()
		if err != nil {
			return false, err
		}

		switch b {
		case 'y', 'Y':
			t.print("y\r\n")

			return true, nil
		case 'n', 'N', keyEsc:
			t.print("n\r\n")

			return false, nil
		}
	}
}

// ResetInput discards buffered keystrokes.
func (t *Terminal) ResetInput() {
	t.lastCR = false

	for {
		select {
		case _, ok := <-t.keys:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// AbortRequested returns true if ESC is among the buffered keystrokes.
func (t *Terminal) AbortRequested() bool {
	for {
		select {
		case b, ok := <-t.keys:
			if !ok {
				return false
			}

			if b == keyEsc {
				return true
			}
		default:
			return false
		}
	}
}

// Progress renders the operation progress.
func (t *Terminal) Progress(permille int) {
	if t.bar == nil {
		t.bar = progressbar.NewOptions(1000,
			progressbar.OptionSetWriter(t.out),
			progressbar.OptionSetDescription(fmt.Sprintf("%sing", t.dir)),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
		)
	}

	if err := t.bar.Set(permille); err != nil {
		t.options.Logger.Debug("failed to render progress", zap.Error(err))
	}
}

// Newline ends the progress output and starts a new line.
//
// The bar is left at its last value, so an interrupted run stays visible.
func (t *Terminal) Newline() {
	t.bar = nil

	t.print("\r\n")
}
