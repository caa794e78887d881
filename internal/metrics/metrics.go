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

// Package metrics exposes prometheus counters/histograms for effect
// triggers, op latency and invariant violations.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/brokenfuse/brokenfuse/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EffectTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokenfuse",
			Name:      "effect_triggers_total",
			Help:      "Count of effect evaluations that short-circuited an operation, by kind and errno.",
		},
		[]string{"kind", "errno"},
	)

	OpLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brokenfuse",
			Name:      "op_latency_seconds",
			Help:      "Latency of served FUSE operations, including injected delay.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	InvariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brokenfuse",
			Name:      "invariant_violations_total",
			Help:      "Count of fatal node-table invariant violations.",
		},
	)
)

func init() {
	prometheus.MustRegister(EffectTriggers, OpLatencySeconds, InvariantViolations)
}

// StartServer serves the prometheus registry on /metrics at the given port
// for the life of the process. A port of zero disables the endpoint.
func StartServer(port int) {
	if port <= 0 {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Infof("Serving prometheus metrics on port %d", port)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			logger.Errorf("prometheus metrics server: %v", err)
		}
	}()
}
