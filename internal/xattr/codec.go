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

package xattr

import (
	"syscall"

	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/mitchellh/mapstructure"
)

// decode mapstructure-decodes a generic JSON object into dst. Unknown
// fields are rejected.
func decode(raw map[string]any, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		Result:           dst,
		TagName:          "mapstructure",
	})
	if err != nil {
		return syscall.EINVAL
	}
	if err := decoder.Decode(raw); err != nil {
		return syscall.EINVAL
	}
	return nil
}

// DecodeConfig parses a kind's JSON xattr value into its typed Config
// struct.
func DecodeConfig(kind effect.Kind, raw map[string]any) (any, error) {
	switch kind {
	case effect.KindDelay:
		var c effect.DelayConfig
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case effect.KindFlakey:
		var c effect.FlakeyConfig
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case effect.KindMaxSize:
		var c effect.MaxSizeConfig
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case effect.KindHeatmap:
		var c effect.HeatmapConfig
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case effect.KindQuota:
		var c effect.QuotaConfig
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, syscall.EINVAL
	}
}
