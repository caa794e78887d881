// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the daemon's fully parsed, validated configuration.
type Config struct {
	MountPoint ResolvedPath `yaml:"mount-point"`

	Backing BackingConfig `yaml:"backing"`

	Logging LoggingConfig `yaml:"logging"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	Metrics MetricsConfig `yaml:"metrics"`

	// Seed seeds the fault-injection RNG deterministically (settable via the
	// BF_SEED environment variable). Zero means "unset"; the daemon falls
	// back to OS entropy.
	Seed int64 `yaml:"seed"`

	Debug DebugConfig `yaml:"debug"`
}

// FileSystemConfig carries the permission bits reported for nodes in the
// mounted tree.
type FileSystemConfig struct {
	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`
}

// MetricsConfig controls the prometheus scrape endpoint. A zero port
// disables it.
type MetricsConfig struct {
	PrometheusPort int `yaml:"prometheus-port"`
}

// BackingConfig selects the backing store: a host directory, or an
// in-memory synthetic tree when no directory is given.
type BackingConfig struct {
	Dir      ResolvedPath `yaml:"dir"`
	InMemory bool         `yaml:"in-memory"`
}

type LoggingConfig struct {
	Severity  LogSeverity            `yaml:"severity"`
	Format    string                 `yaml:"format"`
	LogFile   ResolvedPath           `yaml:"log-file"`
	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

// BindFlags binds each Config field to a CLI flag and a viper key.
func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("backing", "b", "", "Directory to use as the backing store. Empty means an in-memory synthetic store.")
	if err = v.BindPFlag("backing.dir", flagSet.Lookup("backing")); err != nil {
		return err
	}

	flagSet.Int64P("seed", "", 0, "Seed for the fault-injection RNG (BF_SEED). 0 means seed from OS entropy.")
	if err = v.BindPFlag("seed", flagSet.Lookup("seed")); err != nil {
		return err
	}

	flagSet.StringP("file-mode", "", "644", "Permission bits for files, in octal.")
	if err = v.BindPFlag("file-system.file-mode", flagSet.Lookup("file-mode")); err != nil {
		return err
	}

	flagSet.StringP("dir-mode", "", "755", "Permission bits for directories, in octal.")
	if err = v.BindPFlag("file-system.dir-mode", flagSet.Lookup("dir-mode")); err != nil {
		return err
	}

	flagSet.IntP("prometheus-port", "", 0, "Port for the prometheus /metrics endpoint. 0 disables it.")
	if err = v.BindPFlag("metrics.prometheus-port", flagSet.Lookup("prometheus-port")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = v.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log output format: text or json.")
	if err = v.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to a log file. Empty means stderr.")
	if err = v.BindPFlag("logging.log-file", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.IntP("log-rotate-max-file-size-mb", "", 512, "Maximum size in megabytes that a log file can reach before it is rotated.")
	if err = v.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-rotate-max-file-size-mb")); err != nil {
		return err
	}

	flagSet.IntP("log-rotate-backup-file-count", "", 10, "Maximum number of backup log files to retain after rotation. 0 retains all.")
	if err = v.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-rotate-backup-file-count")); err != nil {
		return err
	}

	flagSet.BoolP("log-rotate-compress", "", true, "Compress rotated log files with gzip.")
	if err = v.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-rotate-compress")); err != nil {
		return err
	}

	flagSet.BoolP("exit-on-invariant-violation", "", true, "Exit with code 10 when an internal invariant is violated.")
	if err = v.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("exit-on-invariant-violation")); err != nil {
		return err
	}

	return nil
}
