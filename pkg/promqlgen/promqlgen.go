// Copyright 2019 The Cactuar Authors
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

// Package promqlgen renders the PromQL expressions of generated alerting
// rules.
package promqlgen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/prometheus/model/labels"
	promql "github.com/prometheus/prometheus/promql/parser"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
)

// ReplicaLabel is the label carrying the workload name on `up` series.
const ReplicaLabel = "app_kubernetes_io_name"

const (
	requestsMetric = "istio_requests_total"
	latencyMetric  = "istio_request_duration_milliseconds_bucket"
)

// Protocol selects the metric family of network expressions.
type Protocol string

const (
	HTTP Protocol = "HTTP"
	GRPC Protocol = "gRPC"
)

// ErrNoTemplate is returned for a kind that has no expression for a protocol.
var ErrNoTemplate = errors.New("no expression template")

// Comparison returns the PromQL comparison operator for op.
func Comparison(op cactuarv1.Operation) (string, error) {
	switch op {
	case cactuarv1.EqualTo:
		return "==", nil
	case cactuarv1.LessThan:
		return "<", nil
	case cactuarv1.MoreThan:
		return ">", nil
	}
	return "", errors.Errorf("unknown operation %q", op)
}

// FormatValue renders a threshold with the shortest exact decimal
// representation, e.g. 3 or 0.25.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Quantile returns the histogram quantile of a latency kind.
func Quantile(kind cactuarv1.NetworkAlert) (float64, bool) {
	q, ok := quantiles[kind]
	return q, ok
}

var quantiles = map[cactuarv1.NetworkAlert]float64{
	cactuarv1.LatencyP50: 0.50,
	cactuarv1.LatencyP90: 0.90,
	cactuarv1.LatencyP95: 0.95,
	cactuarv1.LatencyP99: 0.99,
}

// ReplicaCount returns the expression comparing the number of up targets of
// the deployment against value.
func ReplicaCount(deployment string, op cactuarv1.Operation, value float64) (string, error) {
	cmp, err := Comparison(op)
	if err != nil {
		return "", err
	}

	sel := selector("up", labels.MustNewMatcher(labels.MatchEqual, ReplicaLabel, deployment))
	return fmt.Sprintf("sum by (%s) (%s) %s %s", ReplicaLabel, sel, cmp, FormatValue(value)), nil
}

// template renders the left-hand side of a network expression.
type template func(base []*labels.Matcher, failures *labels.Matcher, window string) string

type family struct {
	base     func(deployment string) []*labels.Matcher
	failures *labels.Matcher
	kinds    map[cactuarv1.NetworkAlert]template
}

var families = map[Protocol]family{
	HTTP: {
		base: func(deployment string) []*labels.Matcher {
			return []*labels.Matcher{
				labels.MustNewMatcher(labels.MatchEqual, "reporter", "destination"),
				labels.MustNewMatcher(labels.MatchEqual, "destination_workload", deployment),
			}
		},
		failures: labels.MustNewMatcher(labels.MatchRegexp, "response_code", "5.."),
		kinds: map[cactuarv1.NetworkAlert]template{
			cactuarv1.ErrorPercent:     errorPercent,
			cactuarv1.TrafficPerSecond: trafficPerSecond,
			cactuarv1.LatencyP50:       latency(cactuarv1.LatencyP50),
			cactuarv1.LatencyP90:       latency(cactuarv1.LatencyP90),
			cactuarv1.LatencyP95:       latency(cactuarv1.LatencyP95),
			cactuarv1.LatencyP99:       latency(cactuarv1.LatencyP99),
		},
	},
	GRPC: {
		base: func(deployment string) []*labels.Matcher {
			return []*labels.Matcher{
				labels.MustNewMatcher(labels.MatchEqual, "reporter", "destination"),
				labels.MustNewMatcher(labels.MatchEqual, "destination_workload", deployment),
				labels.MustNewMatcher(labels.MatchEqual, "request_protocol", "grpc"),
			}
		},
		failures: labels.MustNewMatcher(labels.MatchNotEqual, "grpc_response_status", "0"),
		// Traffic has no gRPC expression yet and must fail translation.
		kinds: map[cactuarv1.NetworkAlert]template{
			cactuarv1.ErrorPercent: errorPercent,
			cactuarv1.LatencyP50:   latency(cactuarv1.LatencyP50),
			cactuarv1.LatencyP90:   latency(cactuarv1.LatencyP90),
			cactuarv1.LatencyP95:   latency(cactuarv1.LatencyP95),
			cactuarv1.LatencyP99:   latency(cactuarv1.LatencyP99),
		},
	},
}

// Supported returns true if the protocol has an expression for kind.
func Supported(p Protocol, kind cactuarv1.NetworkAlert) bool {
	_, ok := families[p].kinds[kind]
	return ok
}

// Network returns the expression of a network alert of the given kind. The
// window is the range used for rates and is typically the rule's `for`.
func Network(p Protocol, kind cactuarv1.NetworkAlert, deployment, window string, op cactuarv1.Operation, value float64) (string, error) {
	f, ok := families[p]
	if !ok {
		return "", errors.Errorf("unknown protocol %q", p)
	}

	tmpl, ok := f.kinds[kind]
	if !ok {
		return "", errors.Wrapf(ErrNoTemplate, "%s %s", p, kind)
	}

	cmp, err := Comparison(op)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s %s %s", tmpl(f.base(deployment), f.failures, window), cmp, FormatValue(value)), nil
}

func errorPercent(base []*labels.Matcher, failures *labels.Matcher, window string) string {
	failed := append(append([]*labels.Matcher{}, base...), failures)
	return fmt.Sprintf("sum(rate(%s[%s])) / sum(rate(%s[%s])) * 100",
		selector(requestsMetric, failed...), window,
		selector(requestsMetric, base...), window,
	)
}

func trafficPerSecond(base []*labels.Matcher, _ *labels.Matcher, window string) string {
	return fmt.Sprintf("sum(rate(%s[%s]))", selector(requestsMetric, base...), window)
}

func latency(kind cactuarv1.NetworkAlert) template {
	q := quantiles[kind]
	return func(base []*labels.Matcher, _ *labels.Matcher, window string) string {
		return fmt.Sprintf("histogram_quantile(%s, sum by (le) (rate(%s[%s])))",
			FormatValue(q), selector(latencyMetric, base...), window)
	}
}

func selector(metric string, matchers ...*labels.Matcher) string {
	parts := make([]string, len(matchers))
	for i, m := range matchers {
		parts[i] = m.String()
	}
	return metric + "{" + strings.Join(parts, ",") + "}"
}

// Validate parses expr and returns an error if it is not valid PromQL.
func Validate(expr string) error {
	if _, err := promql.ParseExpr(expr); err != nil {
		return errors.Wrapf(err, "invalid expression %q", expr)
	}
	return nil
}

// MetricNames returns the sorted, deduplicated names of the metrics selected
// by expr.
func MetricNames(expr string) ([]string, error) {
	parsed, err := promql.ParseExpr(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid expression %q", expr)
	}

	names := map[string]struct{}{}
	promql.Inspect(parsed, func(node promql.Node, _ []promql.Node) error {
		if vs, ok := node.(*promql.VectorSelector); ok {
			names[vs.Name] = struct{}{}
		}
		return nil
	})

	return sortedKeys(names), nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
