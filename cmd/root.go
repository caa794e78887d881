// Copyright 2025 Google LLC
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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brokenfuse/brokenfuse/cfg"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd builds the brokenfuse command. mountFn receives the parsed,
// validated configuration; injecting it keeps command construction
// testable without mounting anything.
func NewRootCmd(mountFn func(c cfg.Config) error) (*cobra.Command, error) {
	var (
		cfgFile   string
		configObj cfg.Config
	)
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "brokenfuse <mountpoint> [flags]",
		Short: "Mount a fault-injecting passthrough filesystem",
		Long: `Broken Fuse mounts a passthrough filesystem over a backing directory
(or an in-memory synthetic tree) and injects I/O faults configured at
runtime through bf.* extended attributes: delays, probabilistic and
scheduled failures, subtree size limits, quotas and access heatmaps.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				resolved, err := filepath.Abs(cfgFile)
				if err != nil {
					return fmt.Errorf("error while resolving config file path: %w", err)
				}
				v.SetConfigFile(resolved)
				v.SetConfigType("yaml")
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("error while reading config file: %w", err)
				}
			}
			// Config fields are tagged "yaml" with the same hyphenated names
			// as the viper keys, so decode by that tag.
			useYAMLTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }
			if err := v.Unmarshal(&configObj, viper.DecodeHook(cfg.DecodeHook()), useYAMLTags); err != nil {
				return err
			}
			if err := cfg.ValidateConfig(&configObj); err != nil {
				return err
			}

			mountPoint, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("canonicalizing mount point: %w", err)
			}
			configObj.MountPoint = cfg.ResolvedPath(mountPoint)
			return mountFn(configObj)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	if err := cfg.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		return nil, err
	}
	// BF_SEED is the documented environment override for the RNG seed.
	if err := v.BindEnv("seed", "BF_SEED"); err != nil {
		return nil, err
	}
	return rootCmd, nil
}

// Execute parses flags and config, mounts the filesystem, and blocks until
// unmount. The returned value is the process exit code.
func Execute() int {
	var (
		mountConfig cfg.Config
		parsed      bool
	)
	rootCmd, err := NewRootCmd(func(c cfg.Config) error {
		mountConfig = c
		parsed = true
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error while building the command: %v\n", err)
		return cfg.ExitArgumentError
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cfg.ExitArgumentError
	}
	// Help and similar no-op invocations never reach RunE.
	if !parsed {
		return cfg.ExitSuccess
	}
	return runMount(&mountConfig)
}
