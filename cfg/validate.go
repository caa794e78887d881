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

import "fmt"

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be atleast 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidBackingConfig(config *BackingConfig) error {
	if config.InMemory && config.Dir != "" {
		return fmt.Errorf("backing: cannot set both --backing and in-memory mode")
	}
	return nil
}

func isValidMetricsConfig(config *MetricsConfig) error {
	if config.PrometheusPort < 0 || config.PrometheusPort > 65535 {
		return fmt.Errorf("prometheus-port must be in [0, 65535], got %d", config.PrometheusPort)
	}
	return nil
}

func isValidLogFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("log-format must be \"text\" or \"json\", got %q", format)
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	if err := isValidBackingConfig(&config.Backing); err != nil {
		return fmt.Errorf("error parsing backing config: %w", err)
	}

	if err := isValidLogFormat(config.Logging.Format); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}

	if err := isValidMetricsConfig(&config.Metrics); err != nil {
		return fmt.Errorf("error parsing metrics config: %w", err)
	}

	return nil
}
