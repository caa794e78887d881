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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brokenfuse/brokenfuse/cfg"
	"github.com/brokenfuse/brokenfuse/clock"
	"github.com/brokenfuse/brokenfuse/fsops"
	"github.com/brokenfuse/brokenfuse/internal/backing"
	"github.com/brokenfuse/brokenfuse/internal/logger"
	"github.com/brokenfuse/brokenfuse/internal/metrics"
	"github.com/brokenfuse/brokenfuse/internal/rng"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
)

const (
	successfulMountMessage         = "File system has been successfully mounted."
	unsuccessfulMountMessagePrefix = "Error while mounting brokenfuse"
)

// registerSIGINTHandler unmounts in response to SIGINT/SIGTERM so that a
// Ctrl-C during a test run tears the mount down cleanly.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			<-signalChan
			logger.Info("Received SIGINT, attempting to unmount...")

			err := fuse.Unmount(mountPoint)
			if err != nil {
				logger.Errorf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				logger.Info("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}

// newBackingStore builds the backing store the config names: a real host
// directory, or the in-memory synthetic store when none is given.
func newBackingStore(c *cfg.Config) (*backing.Store, error) {
	if c.Backing.Dir == "" {
		logger.Info("Using an in-memory synthetic backing store")
		return backing.NewMemBacking(), nil
	}

	fi, err := os.Stat(string(c.Backing.Dir))
	if err != nil {
		return nil, fmt.Errorf("backing directory %q: %w", c.Backing.Dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("backing path %q is not a directory", c.Backing.Dir)
	}
	return backing.NewOsBacking(string(c.Backing.Dir)), nil
}

func newRNG(c *cfg.Config) rng.Source {
	if c.Seed != 0 {
		logger.Infof("Seeding RNG deterministically with %d", c.Seed)
		seed := c.Seed
		return rng.NewFromEnvironment(&seed)
	}
	return rng.NewFromEnvironment(nil)
}

// getFuseMountConfig assembles the jacobsa/fuse mount options, bridging its
// *log.Logger hooks into the structured logger.
func getFuseMountConfig(c *cfg.Config) *fuse.MountConfig {
	mountCfg := &fuse.MountConfig{
		FSName:      "brokenfuse",
		Subtype:     "brokenfuse",
		VolumeName:  "brokenfuse",
		ErrorLogger: logger.NewLegacyLogger(logger.LevelError, "fuse_errors: ", "brokenfuse"),
	}
	if c.Logging.Severity == cfg.TraceLogSeverity {
		mountCfg.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "fuse_debug: ", "brokenfuse")
	}
	return mountCfg
}

// mountWithConfig constructs the server and mounts it at the configured
// mount point.
func mountWithConfig(ctx context.Context, c *cfg.Config, store *backing.Store) (*fuse.MountedFileSystem, error) {
	serverCfg := &fsops.ServerConfig{
		Clock:                    clock.RealClock{},
		CacheClock:               timeutil.RealClock(),
		RNG:                      newRNG(c),
		Backing:                  store,
		Uid:                      uint32(os.Getuid()),
		Gid:                      uint32(os.Getgid()),
		FilePerm:                 os.FileMode(c.FileSystem.FileMode),
		DirPerm:                  os.FileMode(c.FileSystem.DirMode),
		ExitOnInvariantViolation: c.Debug.ExitOnInvariantViolation,
	}

	server, err := fsops.NewServer(serverCfg)
	if err != nil {
		return nil, fmt.Errorf("fsops.NewServer: %w", err)
	}

	return fuse.Mount(string(c.MountPoint), server, getFuseMountConfig(c))
}

// runMount is the daemon's main loop: init logging, build the backing
// store, mount, and block until unmount. The returned value is the process
// exit code.
func runMount(c *cfg.Config) int {
	if err := logger.Init(c.Logging); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cfg.ExitArgumentError
	}

	metrics.StartServer(c.Metrics.PrometheusPort)

	store, err := newBackingStore(c)
	if err != nil {
		logger.Errorf("%s: %v", unsuccessfulMountMessagePrefix, err)
		return cfg.ExitBackingStoreFailure
	}

	ctx := context.Background()
	mfs, err := mountWithConfig(ctx, c, store)
	if err != nil {
		logger.Errorf("%s: %v", unsuccessfulMountMessagePrefix, err)
		return cfg.ExitMountFailure
	}
	logger.Info(successfulMountMessage)

	registerSIGINTHandler(mfs.Dir())

	if err := mfs.Join(ctx); err != nil {
		logger.Errorf("MountedFileSystem.Join: %v", err)
		return cfg.ExitMountFailure
	}

	logger.Info("File system has been successfully unmounted.")
	return cfg.ExitSuccess
}
