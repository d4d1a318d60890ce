// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics exposes assignment engine counters.
//
// The engine depends on the Collector interface. Nop is used in tests and
// when metrics are not wanted; PrometheusCollector backs GET /metrics.
package metrics
