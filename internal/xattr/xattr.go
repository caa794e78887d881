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

// Package xattr implements the bf.* control plane: parsing xattr names
// into effect-registry operations, decoding JSON effect configs through
// mapstructure, and mutating node-table state.
package xattr

import (
	"encoding/json"
	"strings"
	"syscall"
)

const (
	prefixEffect   = "bf.effect"
	catchAllEffect = "bf.effect"
	allEffects     = "bf.effect/all"
	statsName      = "bf.stats"
)

// Request is a parsed bf.* xattr name.
type Request struct {
	// IsBrokenFuse is false for any name outside the bf.* namespace; such
	// names pass straight through to the backing store.
	IsBrokenFuse bool

	// Exactly one of the following is true for a recognized bf.* name.
	IsEffectNamed bool // bf.effect.<kind>[-<suffix>]
	IsCatchAll    bool // bf.effect (bare)
	IsAllEffects  bool // bf.effect/all
	IsStats       bool // bf.stats

	Kind   string
	Suffix string
}

// ParseName classifies an inbound xattr name.
func ParseName(name string) Request {
	if name == allEffects {
		return Request{IsBrokenFuse: true, IsAllEffects: true}
	}
	if name == statsName {
		return Request{IsBrokenFuse: true, IsStats: true}
	}
	if name == catchAllEffect {
		return Request{IsBrokenFuse: true, IsCatchAll: true}
	}
	if rest, ok := strings.CutPrefix(name, prefixEffect+"."); ok {
		kind, suffix, _ := strings.Cut(rest, "-")
		return Request{IsBrokenFuse: true, IsEffectNamed: true, Kind: kind, Suffix: suffix}
	}
	if strings.HasPrefix(name, "bf.") {
		// Recognized namespace, unrecognized name: still routed to the
		// control plane so it can report ENODATA/EINVAL, never passed
		// through to the backing store.
		return Request{IsBrokenFuse: true}
	}
	return Request{}
}

// DecodeJSON unmarshals a raw xattr value into a generic map, the first
// step before mapstructure-decoding it into a typed effect config.
// Malformed JSON is reported as EINVAL with no state change.
func DecodeJSON(value []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(value, &m); err != nil {
		return nil, syscall.EINVAL
	}
	return m, nil
}
