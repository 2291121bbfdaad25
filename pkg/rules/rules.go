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

// Package rules compiles a ServiceAlert specification into a Prometheus rule
// document. Compilation is deterministic and does no I/O.
package rules

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/promqlgen"
	"github.com/cactuar-rs/cactuar/pkg/strings"
)

const (
	ReplicaGroup = "Replica Alerts"
	HTTPGroup    = "HTTP Alerts"
	GRPCGroup    = "gRPC Alerts"
)

// Document is a Prometheus rule file.
type Document struct {
	Groups []Group `yaml:"groups"`
}

// Group is a named list of rules.
type Group struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

// Rule is an alerting rule.
type Rule struct {
	Alert       string      `yaml:"alert"`
	Expr        string      `yaml:"expr"`
	For         string      `yaml:"for"`
	Labels      Labels      `yaml:"labels"`
	Annotations Annotations `yaml:"annotations"`
}

// Labels of a generated rule. The fields are emitted in declaration order.
type Labels struct {
	Severity string `yaml:"severity"`
	Source   string `yaml:"source"`
	Owner    string `yaml:"owner"`
}

type Annotations struct {
	Summary     string `yaml:"summary"`
	Description string `yaml:"description"`
}

// Compile translates spec into a rule document. Categories are emitted in
// the order replica, HTTP, gRPC, and only if they hold at least one alert
// configuration. It either returns a complete document or a
// *TranslationError.
func Compile(spec *cactuarv1.ServiceAlertSpec) (*Document, error) {
	labels := Labels{
		Source: spec.CommonLabels.Origin,
		Owner:  spec.CommonLabels.Owner,
	}

	doc := &Document{}

	replica, err := replicaRules(spec.DeploymentName, labels, spec.Alerts.Replica)
	if err != nil {
		return nil, err
	}
	if len(replica) > 0 {
		doc.Groups = append(doc.Groups, Group{Name: ReplicaGroup, Rules: replica})
	}

	for _, c := range []struct {
		name     string
		protocol promqlgen.Protocol
		prefix   string
		alerts   map[cactuarv1.NetworkAlert][]cactuarv1.AlertConfig
	}{
		{name: HTTPGroup, protocol: promqlgen.HTTP, prefix: "HTTP", alerts: spec.Alerts.REST},
		{name: GRPCGroup, protocol: promqlgen.GRPC, prefix: "GRPC", alerts: spec.Alerts.GRPC},
	} {
		rules, err := networkRules(c.name, c.protocol, c.prefix, spec.DeploymentName, labels, c.alerts)
		if err != nil {
			return nil, err
		}
		if len(rules) > 0 {
			doc.Groups = append(doc.Groups, Group{Name: c.name, Rules: rules})
		}
	}

	if len(doc.Groups) == 0 {
		return nil, newNoRulesDefinedError()
	}

	return doc, nil
}

func replicaRules(deployment string, labels Labels, alerts map[cactuarv1.ReplicaAlert][]cactuarv1.AlertConfig) ([]Rule, error) {
	if err := checkKinds(ReplicaGroup, alerts, cactuarv1.ReplicaAlerts); err != nil {
		return nil, err
	}

	var rules []Rule
	for _, kind := range cactuarv1.ReplicaAlerts {
		for i, cfg := range alerts[kind] {
			var (
				expr string
				err  error
			)
			switch kind {
			case cactuarv1.Count:
				expr, err = promqlgen.ReplicaCount(deployment, cfg.Operation, cfg.Value)
			default:
				return nil, newUnsupportedAlertKindError(ReplicaGroup, string(kind))
			}
			if err == nil {
				err = promqlgen.Validate(expr)
			}
			if err != nil {
				return nil, newInvalidExpressionError(ReplicaGroup, string(kind), err)
			}

			rules = append(rules, Rule{
				Alert:       fmt.Sprintf("ReplicaRule-%s-%d", deployment, i),
				Expr:        expr,
				For:         cfg.For,
				Labels:      withSeverity(labels, cfg),
				Annotations: replicaAnnotations(deployment, cfg),
			})
		}
	}

	return rules, nil
}

func networkRules(category string, protocol promqlgen.Protocol, prefix, deployment string, labels Labels, alerts map[cactuarv1.NetworkAlert][]cactuarv1.AlertConfig) ([]Rule, error) {
	if err := checkKinds(category, alerts, cactuarv1.NetworkAlerts); err != nil {
		return nil, err
	}

	var rules []Rule
	for _, kind := range cactuarv1.NetworkAlerts {
		configs := alerts[kind]
		if len(configs) == 0 {
			continue
		}
		if !promqlgen.Supported(protocol, kind) {
			return nil, newUnsupportedAlertKindError(category, string(kind))
		}

		for i, cfg := range configs {
			expr, err := promqlgen.Network(protocol, kind, deployment, cfg.For, cfg.Operation, cfg.Value)
			if err == nil {
				err = promqlgen.Validate(expr)
			}
			if err != nil {
				return nil, newInvalidExpressionError(category, string(kind), err)
			}

			rules = append(rules, Rule{
				Alert:       fmt.Sprintf("%s%sRule-%s-%d", prefix, strings.ToPascalCase(string(kind)), deployment, i),
				Expr:        expr,
				For:         cfg.For,
				Labels:      withSeverity(labels, cfg),
				Annotations: networkAnnotations(protocol, kind, deployment, cfg),
			})
		}
	}

	return rules, nil
}

// checkKinds rejects keys outside of the known kinds. The first unknown kind
// in lexical order is reported so that the error is stable.
func checkKinds[K ~string](category string, alerts map[K][]cactuarv1.AlertConfig, known []K) error {
	var unknown []string
	for kind := range alerts {
		found := false
		for _, k := range known {
			if kind == k {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, string(kind))
		}
	}

	if len(unknown) == 0 {
		return nil
	}

	sort.Strings(unknown)
	return newUnsupportedAlertKindError(category, unknown[0])
}

// Severity maps the severity label of cfg to a known severity, defaulting to
// warning.
func Severity(cfg cactuarv1.AlertConfig) cactuarv1.Severity {
	s := cactuarv1.Severity(cfg.WithLabels[cactuarv1.SeverityLabel])
	for _, known := range cactuarv1.Severities {
		if s == known {
			return s
		}
	}
	return cactuarv1.SeverityWarning
}

func withSeverity(labels Labels, cfg cactuarv1.AlertConfig) Labels {
	labels.Severity = string(Severity(cfg))
	return labels
}

// Owner returns the owner label of the first rule. Compile guarantees that
// every rule of a document carries the same owner.
func (d *Document) Owner() string {
	for _, g := range d.Groups {
		if len(g.Rules) > 0 {
			return g.Rules[0].Labels.Owner
		}
	}
	return ""
}

// RuleCount returns the number of rules across all groups.
func (d *Document) RuleCount() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Rules)
	}
	return n
}

// MetricNames returns the sorted names of the metrics the rules of the
// document select.
func (d *Document) MetricNames() ([]string, error) {
	names := map[string]struct{}{}
	for _, g := range d.Groups {
		for _, r := range g.Rules {
			m, err := promqlgen.MetricNames(r.Expr)
			if err != nil {
				return nil, errors.Wrapf(err, "rule %s", r.Alert)
			}
			for _, n := range m {
				names[n] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Marshal serializes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(d); err != nil {
		return nil, errors.Wrap(err, "encoding rule document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encoding rule document")
	}

	return buf.Bytes(), nil
}
