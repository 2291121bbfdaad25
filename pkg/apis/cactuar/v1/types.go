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

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ServiceAlert describes the alerting intent for a single workload. The
// controller compiles it into a Prometheus rule document stored in an owned
// artifact.
type ServiceAlert struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ServiceAlertSpec   `json:"spec"`
	Status ServiceAlertStatus `json:"status,omitempty"`
}

// ServiceAlertList is a list of ServiceAlert objects.
type ServiceAlertList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []ServiceAlert `json:"items"`
}

// ServiceAlertSpec is the desired state of a ServiceAlert.
type ServiceAlertSpec struct {
	// CommonLabels are attached to every generated rule.
	CommonLabels CommonLabels `json:"commonLabels"`

	// DeploymentName correlates generated rules to a workload.
	DeploymentName string `json:"deploymentName"`

	Alerts Alerts `json:"alerts"`
}

// CommonLabels are shared by all rules generated from one ServiceAlert.
type CommonLabels struct {
	// Owner identifies the team owning the alerts. It is also the data key of
	// the generated artifact and must not be empty.
	Owner string `json:"owner"`

	// Origin is emitted as the `source` label of every rule.
	Origin string `json:"origin"`

	// Extra labels are copied onto the generated artifact's metadata.
	Extra map[string]string `json:"extra,omitempty"`
}

// Alerts groups alert configurations by category. A nil map means the
// category is absent.
type Alerts struct {
	REST    map[NetworkAlert][]AlertConfig `json:"REST,omitempty"`
	GRPC    map[NetworkAlert][]AlertConfig `json:"gRPC,omitempty"`
	Replica map[ReplicaAlert][]AlertConfig `json:"replica,omitempty"`
}

// NetworkAlert is the kind of an HTTP or gRPC alert.
type NetworkAlert string

const (
	ErrorPercent     NetworkAlert = "errorPercent"
	TrafficPerSecond NetworkAlert = "trafficPerSecond"
	LatencyP50       NetworkAlert = "latencyMillisecondsP50"
	LatencyP90       NetworkAlert = "latencyMillisecondsP90"
	LatencyP95       NetworkAlert = "latencyMillisecondsP95"
	LatencyP99       NetworkAlert = "latencyMillisecondsP99"
)

// NetworkAlerts lists every network alert kind in the order rules are
// generated.
var NetworkAlerts = []NetworkAlert{
	ErrorPercent,
	TrafficPerSecond,
	LatencyP50,
	LatencyP90,
	LatencyP95,
	LatencyP99,
}

// ReplicaAlert is the kind of a replica alert.
type ReplicaAlert string

const (
	Count ReplicaAlert = "count"
)

// ReplicaAlerts lists every replica alert kind in the order rules are
// generated.
var ReplicaAlerts = []ReplicaAlert{
	Count,
}

// Operation is the comparison applied between the observed metric and the
// configured value.
type Operation string

const (
	EqualTo  Operation = "EqualTo"
	LessThan Operation = "LessThan"
	MoreThan Operation = "MoreThan"
)

// Operations lists every supported comparison.
var Operations = []Operation{EqualTo, LessThan, MoreThan}

// AlertConfig is one threshold rule.
type AlertConfig struct {
	Operation Operation `json:"operation"`
	Value     float64   `json:"value"`

	// For is a Prometheus duration ("5m"). It is passed through verbatim as
	// the rule's `for` and as the range of rate windows.
	For string `json:"for"`

	// WithLabels must carry a `severity` key. Anything other than a known
	// severity is treated as warning.
	WithLabels map[string]string `json:"withLabels,omitempty"`
}

// Severity of a generated rule.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityPage     Severity = "page"

	// SeverityLabel is the WithLabels key holding the severity.
	SeverityLabel = "severity"
)

// Severities lists every known severity.
var Severities = []Severity{SeverityWarning, SeverityCritical, SeverityPage}

// ServiceAlertStatus is only written by the controller. It is never read
// back when reconciling.
type ServiceAlertStatus struct {
	LastReconciledAt        *metav1.Time `json:"lastReconciledAt,omitempty"`
	ReconciliationExpiresAt *metav1.Time `json:"reconciliationExpiresAt,omitempty"`
}

// HasFinalizer returns true if the controller finalizer is set.
func (sa *ServiceAlert) HasFinalizer() bool {
	for _, f := range sa.Finalizers {
		if f == Finalizer {
			return true
		}
	}
	return false
}

// IsBeingDeleted returns true once deletion of the object was requested.
func (sa *ServiceAlert) IsBeingDeleted() bool {
	return sa.DeletionTimestamp != nil
}
