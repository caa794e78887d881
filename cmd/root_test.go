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
	"testing"

	"github.com/brokenfuse/brokenfuse/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func getConfigObject(t *testing.T, args []string) (*cfg.Config, error) {
	t.Helper()
	var c cfg.Config
	cmd, err := NewRootCmd(func(config cfg.Config) error {
		c = config
		return nil
	})
	require.NoError(t, err)
	cmdArgs := append(args, "/mnt/test")
	cmd.SetArgs(cmdArgs)
	if err = cmd.Execute(); err != nil {
		return nil, err
	}

	return &c, nil
}

func getConfigObjectWithConfigFile(t *testing.T, configFilePath string) (*cfg.Config, error) {
	t.Helper()
	return getConfigObject(t, []string{fmt.Sprintf("--config-file=%s", configFilePath)})
}

func TestArgCount(t *testing.T) {
	cmd, err := NewRootCmd(func(cfg.Config) error { return nil })
	require.NoError(t, err)

	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())

	cmd.SetArgs([]string{"/mnt/a", "/mnt/b"})
	assert.Error(t, cmd.Execute())
}

func TestDefaultConfig(t *testing.T) {
	c, err := getConfigObject(t, nil)

	require.NoError(t, err)
	assert.Equal(t, cfg.ResolvedPath(""), c.Backing.Dir)
	assert.Equal(t, int64(0), c.Seed)
	assert.Equal(t, cfg.InfoLogSeverity, c.Logging.Severity)
	assert.Equal(t, "text", c.Logging.Format)
	assert.True(t, c.Debug.ExitOnInvariantViolation)
	assert.Equal(t, cfg.Octal(0644), c.FileSystem.FileMode)
	assert.Equal(t, cfg.Octal(0755), c.FileSystem.DirMode)
	assert.Equal(t, 512, c.Logging.LogRotate.MaxFileSizeMb)
	assert.Equal(t, 10, c.Logging.LogRotate.BackupFileCount)
	assert.True(t, c.Logging.LogRotate.Compress)
}

func TestMountPointIsCanonicalized(t *testing.T) {
	var c cfg.Config
	cmd, err := NewRootCmd(func(config cfg.Config) error {
		c = config
		return nil
	})
	require.NoError(t, err)
	cmd.SetArgs([]string{"relative/mount/point"})

	require.NoError(t, cmd.Execute())
	assert.True(t, filepath.IsAbs(string(c.MountPoint)))
}

func TestFlagParsing(t *testing.T) {
	backing := t.TempDir()

	c, err := getConfigObject(t, []string{
		"--backing", backing,
		"--seed", "42",
		"--log-severity", "trace",
		"--log-format", "json",
		"--file-mode", "600",
	})

	require.NoError(t, err)
	assert.Equal(t, cfg.ResolvedPath(backing), c.Backing.Dir)
	assert.Equal(t, int64(42), c.Seed)
	assert.Equal(t, cfg.TraceLogSeverity, c.Logging.Severity)
	assert.Equal(t, "json", c.Logging.Format)
	assert.Equal(t, cfg.Octal(0600), c.FileSystem.FileMode)
}

func TestInvalidLogFormatRejected(t *testing.T) {
	_, err := getConfigObject(t, []string{"--log-format", "xml"})

	assert.Error(t, err)
}

func TestInvalidLogRotateConfigRejected(t *testing.T) {
	_, err := getConfigObject(t, []string{"--log-rotate-max-file-size-mb", "0"})

	assert.Error(t, err)
}

func TestSeedFromEnvironment(t *testing.T) {
	t.Setenv("BF_SEED", "99")

	c, err := getConfigObject(t, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(99), c.Seed)
}

func TestConfigFileParsing(t *testing.T) {
	backing := t.TempDir()
	content, err := yaml.Marshal(map[string]any{
		"backing": map[string]any{"dir": backing},
		"seed":    7,
		"logging": map[string]any{
			"severity": "debug",
			"format":   "json",
		},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, content, 0644))

	c, err := getConfigObjectWithConfigFile(t, path)

	require.NoError(t, err)
	assert.Equal(t, cfg.ResolvedPath(backing), c.Backing.Dir)
	assert.Equal(t, int64(7), c.Seed)
	assert.Equal(t, cfg.DebugLogSeverity, c.Logging.Severity)
	assert.Equal(t, "json", c.Logging.Format)
}

func TestConfigFileMissing(t *testing.T) {
	_, err := getConfigObjectWithConfigFile(t, "/nonexistent/config.yaml")

	assert.Error(t, err)
}
