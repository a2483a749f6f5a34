// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/YodaRocker/CipherShed/convert"
	"github.com/YodaRocker/CipherShed/header"
)

// config is the merged configuration of file, environment and flags.
type config struct {
	BufferSectors    uint64 `mapstructure:"buffer_sectors"`
	Silent           bool   `mapstructure:"silent"`
	PasswordAsterisk bool   `mapstructure:"password_asterisk"`
	KDFIterations    int    `mapstructure:"kdf_iterations"`
	HeaderLBA        uint64 `mapstructure:"header_lba"`
	Journal          string `mapstructure:"journal"`
	Verbose          bool   `mapstructure:"verbose"`

	// PartitionAlignment of new volume partitions in sectors, 0 aligns to 1MiB.
	PartitionAlignment uint64 `mapstructure:"partition_alignment"`

	// SectorSize overrides the detected sector size of disk images.
	SectorSize *uint `mapstructure:"sector_size"`
}

var (
	cfgFile string
	cfg     config
	logger  = zap.NewNop()
)

// flag name -> config key
var boundFlags = map[string]string{
	"buffer-sectors":      "buffer_sectors",
	"silent":              "silent",
	"password-asterisk":   "password_asterisk",
	"kdf-iterations":      "kdf_iterations",
	"header-lba":          "header_lba",
	"partition-alignment": "partition_alignment",
	"journal":             "journal",
	"verbose":             "verbose",
}

var rootCmd = &cobra.Command{
	Use:   "cscvt",
	Short: "In-place volume encryption converter",
	Long: `cscvt encrypts or decrypts a CipherShed volume in place.

The conversion is resumable: press ESC to interrupt it, progress is stored
in the volume header and the next run continues where the previous one stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		logger.Sync() //nolint:errcheck
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is ./cscvt.yaml)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Uint64("buffer-sectors", convert.DefaultBufferSectors, "transfer buffer size in sectors")
	flags.Bool("silent", false, "suppress decorative output")
	flags.Bool("password-asterisk", false, "echo password characters as asterisks")
	flags.Int("kdf-iterations", header.DefaultIterations, "PBKDF2 iterations of the header key")
	flags.Uint64("header-lba", 62, "disk sector holding the volume header")
	flags.Uint64("partition-alignment", 0, "alignment of the volume partition in sectors (default 1MiB)")
	flags.String("journal", "", "path of the run journal database")

	rootCmd.AddCommand(
		imageCmd,
		encryptCmd,
		decryptCmd,
		statusCmd,
	)
}

func loadConfig(cmd *cobra.Command) error {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cscvt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cscvt")
		v.AddConfigPath("/etc/cscvt")
	}

	v.SetEnvPrefix("CSCVT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("sector_size"); err != nil {
		return err
	}

	for flag, key := range boundFlags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError

		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	var err error

	if cfg.Verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	return err
}
