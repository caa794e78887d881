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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDefaultLogger(h slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = slog.New(h)
}

func TestTextHandlerFormatsTimeSeverityMessage(t *testing.T) {
	var buf bytes.Buffer
	setDefaultLogger(newTextHandler(&buf, LevelInfo))

	Infof("mounted %s", "/mnt")

	out := buf.String()
	assert.Contains(t, out, `severity=INFO`)
	assert.Contains(t, out, `message="mounted /mnt"`)
	assert.Contains(t, out, `time="`)
}

func TestTextHandlerSuppressesBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	setDefaultLogger(newTextHandler(&buf, LevelWarn))

	Infof("should not appear")
	Debugf("should not appear either")
	Warnf("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestLoggerFactoryJSONFormatProducesValidJSONLines(t *testing.T) {
	var buf bytes.Buffer
	f := loggerFactory{format: "json", level: LevelInfo}
	setDefaultLogger(f.newHandler(&buf))

	Infof("hello %d", 42)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello 42", decoded["msg"])
}

func TestNewLegacyLoggerForwardsIntoDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	setDefaultLogger(newTextHandler(&buf, LevelError))

	l := NewLegacyLogger(LevelError, "fuse: ", "brokenfuse")
	l.Print("kernel reported an error")

	assert.Contains(t, buf.String(), "kernel reported an error")
	assert.Contains(t, buf.String(), "severity=ERROR")
}

func TestSeverityRankingMapsToDistinctLevels(t *testing.T) {
	assert.Less(t, int(LevelTrace), int(LevelDebug))
	assert.Less(t, int(LevelDebug), int(LevelInfo))
	assert.Less(t, int(LevelInfo), int(LevelWarn))
	assert.Less(t, int(LevelWarn), int(LevelError))
	assert.Less(t, int(LevelError), int(levelOff))
}
