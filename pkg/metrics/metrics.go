// Copyright 2025 The Cactuar Authors
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

package metrics

import (
	"k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/legacyregistry"
)

// Results of a reconciliation attempt.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ReconcileAttempts counts ServiceAlert reconciliations by result.
var ReconcileAttempts = metrics.NewCounterVec(&metrics.CounterOpts{
	Name:           "cactuar_reconcile_attempts_total",
	Help:           "Number of attempts to reconcile ServiceAlert objects.",
	StabilityLevel: metrics.ALPHA,
}, []string{"result"})

// ReconcileErrors counts failed reconciliations by error kind.
var ReconcileErrors = metrics.NewCounterVec(&metrics.CounterOpts{
	Name:           "cactuar_reconcile_errors_total",
	Help:           "Number of errors that occurred while reconciling ServiceAlert objects.",
	StabilityLevel: metrics.ALPHA,
}, []string{"kind"})

var ReconcileDuration = metrics.NewHistogram(&metrics.HistogramOpts{
	Name:           "cactuar_reconcile_duration_seconds",
	Help:           "Time spent reconciling a single ServiceAlert.",
	Buckets:        metrics.ExponentialBuckets(0.005, 2, 12),
	StabilityLevel: metrics.ALPHA,
})

// TranslationRules is a gauge that holds the number of rules generated for
// the most recently reconciled ServiceAlert of each namespace.
var TranslationRules = metrics.NewGaugeVec(&metrics.GaugeOpts{
	Name:           "cactuar_translation_rules",
	Help:           "Number of alerting rules generated for the last reconciled ServiceAlert.",
	StabilityLevel: metrics.ALPHA,
}, []string{"namespace", "name"})

func init() {
	legacyregistry.MustRegister(ReconcileAttempts)
	legacyregistry.MustRegister(ReconcileErrors)
	legacyregistry.MustRegister(ReconcileDuration)
	legacyregistry.MustRegister(TranslationRules)
}
