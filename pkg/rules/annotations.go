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

package rules

import (
	"fmt"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/promqlgen"
)

// ValuePlaceholder is substituted by Prometheus with the observed value when
// the alert fires. It is never interpolated here.
const ValuePlaceholder = "{{ $value }}"

func replicaAnnotations(deployment string, cfg cactuarv1.AlertConfig) Annotations {
	v := promqlgen.FormatValue(cfg.Value)

	switch cfg.Operation {
	case cactuarv1.LessThan:
		return Annotations{
			Summary:     "Replicas less than alert boundary",
			Description: fmt.Sprintf("%s replicas of %s currently up, expected at least %s", ValuePlaceholder, deployment, v),
		}
	case cactuarv1.MoreThan:
		return Annotations{
			Summary:     "Replicas more than alert boundary",
			Description: fmt.Sprintf("%s replicas of %s currently up, expected at most %s", ValuePlaceholder, deployment, v),
		}
	default:
		return Annotations{
			Summary:     "Replicas reached alert boundary",
			Description: fmt.Sprintf("%s replicas of %s currently up", v, deployment),
		}
	}
}

type measure struct {
	name string
	unit string
}

var measures = map[cactuarv1.NetworkAlert]measure{
	cactuarv1.ErrorPercent:     {name: "error rate", unit: "%"},
	cactuarv1.TrafficPerSecond: {name: "traffic", unit: "/sec"},
	cactuarv1.LatencyP50:       {name: "latency P(50)", unit: " ms"},
	cactuarv1.LatencyP90:       {name: "latency P(90)", unit: " ms"},
	cactuarv1.LatencyP95:       {name: "latency P(95)", unit: " ms"},
	cactuarv1.LatencyP99:       {name: "latency P(99)", unit: " ms"},
}

var operationText = map[cactuarv1.Operation]string{
	cactuarv1.EqualTo:  "equal to",
	cactuarv1.LessThan: "less than",
	cactuarv1.MoreThan: "more than",
}

func networkAnnotations(protocol promqlgen.Protocol, kind cactuarv1.NetworkAlert, deployment string, cfg cactuarv1.AlertConfig) Annotations {
	m := measures[kind]
	v := promqlgen.FormatValue(cfg.Value) + m.unit
	summary := fmt.Sprintf("%s %s %s for %s", m.name, operationText[cfg.Operation], v, cfg.For)

	switch cfg.Operation {
	case cactuarv1.LessThan:
		return Annotations{
			Summary:     summary,
			Description: fmt.Sprintf("%s %s of %s is %s%s, expected at least %s", protocol, m.name, deployment, ValuePlaceholder, m.unit, v),
		}
	case cactuarv1.MoreThan:
		return Annotations{
			Summary:     summary,
			Description: fmt.Sprintf("%s %s of %s is %s%s, expected at most %s", protocol, m.name, deployment, ValuePlaceholder, m.unit, v),
		}
	default:
		return Annotations{
			Summary:     summary,
			Description: fmt.Sprintf("%s %s of %s reached %s", protocol, m.name, deployment, v),
		}
	}
}
