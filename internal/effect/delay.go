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

package effect

import "time"

// DelayConfig is the xattr value shape for bf.effect.delay.
type DelayConfig struct {
	DurationMs uint32 `mapstructure:"duration_ms" json:"duration_ms"`
	Op         string `mapstructure:"op,omitempty" json:"op,omitempty"`
}

type delayState struct {
	cfg DelayConfig
}

// evaluateDelay always sleeps the configured duration then continues; the
// Filter check (op matches) already happened in Effect.Evaluate.
func evaluateDelay(s *delayState, _ EvalContext) Action {
	d := time.Duration(s.cfg.DurationMs) * time.Millisecond
	if d <= 0 {
		return Continue()
	}
	return SleepThenContinue(d)
}
