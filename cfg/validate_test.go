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
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseConfig() *Config {
	c := &Config{Logging: GetDefaultLoggingConfig()}
	return c
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	assert.NoError(t, ValidateConfig(baseConfig()))
}

func TestValidateConfigRejectsZeroMaxFileSize(t *testing.T) {
	c := baseConfig()
	c.Logging.LogRotate.MaxFileSizeMb = 0
	assert.Error(t, ValidateConfig(c))
}

func TestValidateConfigRejectsNegativeBackupCount(t *testing.T) {
	c := baseConfig()
	c.Logging.LogRotate.BackupFileCount = -1
	assert.Error(t, ValidateConfig(c))
}

func TestValidateConfigRejectsBackingDirWithInMemory(t *testing.T) {
	c := baseConfig()
	c.Backing = BackingConfig{Dir: "/tmp/x", InMemory: true}
	assert.Error(t, ValidateConfig(c))
}

func TestValidateConfigRejectsUnknownLogFormat(t *testing.T) {
	c := baseConfig()
	c.Logging.Format = "xml"
	assert.Error(t, ValidateConfig(c))
}
