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

package manifests

import (
	"strings"

	"github.com/pkg/errors"
	monv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/utils/ptr"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/rules"
)

const (
	// RulesLabel marks every generated artifact.
	RulesLabel      = "rules"
	RulesLabelValue = "prom-rule"

	ManagedByLabel = "app.kubernetes.io/managed-by"
)

// RulesSelector selects the artifacts generated by the controller.
const RulesSelector = RulesLabel + "=" + RulesLabelValue

// ArtifactName returns the name of the artifact generated for sa. There is
// exactly one artifact per ServiceAlert.
func ArtifactName(sa *cactuarv1.ServiceAlert) string {
	return sa.Name
}

// ArtifactLabels returns the metadata labels of the artifact generated for
// sa. Extra common labels are included, the fixed labels take precedence.
func ArtifactLabels(sa *cactuarv1.ServiceAlert) map[string]string {
	l := make(map[string]string, len(sa.Spec.CommonLabels.Extra)+2)
	for k, v := range sa.Spec.CommonLabels.Extra {
		l[k] = v
	}
	l[RulesLabel] = RulesLabelValue
	l[ManagedByLabel] = cactuarv1.FieldManager
	return l
}

// ValidateArtifactLabels returns an error if an extra label is not a valid
// Kubernetes label.
func ValidateArtifactLabels(sa *cactuarv1.ServiceAlert) error {
	for k, v := range sa.Spec.CommonLabels.Extra {
		if errs := validation.IsQualifiedName(k); len(errs) > 0 {
			return errors.Errorf("invalid extra label key %q: %s", k, strings.Join(errs, "; "))
		}
		if errs := validation.IsValidLabelValue(v); len(errs) > 0 {
			return errors.Errorf("invalid extra label value %q for key %q: %s", v, k, strings.Join(errs, "; "))
		}
	}
	return nil
}

// ValidateOwnerKey returns an error if owner cannot be used as a ConfigMap
// data key.
func ValidateOwnerKey(owner string) error {
	if errs := validation.IsConfigMapKey(owner); len(errs) > 0 {
		return errors.Errorf("owner %q is not a valid data key: %s", owner, strings.Join(errs, "; "))
	}
	return nil
}

// OwnerReference returns a controller reference to sa. Garbage collection of
// the artifact relies on it once sa is removed.
func OwnerReference(sa *cactuarv1.ServiceAlert) metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion:         cactuarv1.SchemeGroupVersion.String(),
		Kind:               cactuarv1.ServiceAlertKind,
		Name:               sa.Name,
		UID:                sa.UID,
		Controller:         ptr.To(true),
		BlockOwnerDeletion: ptr.To(true),
	}
}

// NewRulesConfigMap returns the ConfigMap holding doc. It has a single data
// key, the owner of the document's first rule.
func NewRulesConfigMap(sa *cactuarv1.ServiceAlert, doc *rules.Document) (*corev1.ConfigMap, error) {
	owner := doc.Owner()
	if err := ValidateOwnerKey(owner); err != nil {
		return nil, err
	}

	content, err := doc.Marshal()
	if err != nil {
		return nil, err
	}

	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{
			APIVersion: corev1.SchemeGroupVersion.String(),
			Kind:       "ConfigMap",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:            ArtifactName(sa),
			Namespace:       sa.Namespace,
			Labels:          ArtifactLabels(sa),
			OwnerReferences: []metav1.OwnerReference{OwnerReference(sa)},
		},
		Data: map[string]string{
			owner: string(content),
		},
	}, nil
}

// NewPrometheusRule returns the PrometheusRule holding doc.
func NewPrometheusRule(sa *cactuarv1.ServiceAlert, doc *rules.Document) *monv1.PrometheusRule {
	return &monv1.PrometheusRule{
		TypeMeta: metav1.TypeMeta{
			APIVersion: monv1.SchemeGroupVersion.String(),
			Kind:       monv1.PrometheusRuleKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:            ArtifactName(sa),
			Namespace:       sa.Namespace,
			Labels:          ArtifactLabels(sa),
			OwnerReferences: []metav1.OwnerReference{OwnerReference(sa)},
		},
		Spec: monv1.PrometheusRuleSpec{
			Groups: convertRuleGroups(doc.Groups),
		},
	}
}

// convertRuleGroups converts compiled groups to their prometheus-operator
// representation.
func convertRuleGroups(groups []rules.Group) []monv1.RuleGroup {
	monv1Groups := make([]monv1.RuleGroup, len(groups))

	for i, group := range groups {
		monv1Group := monv1.RuleGroup{Name: group.Name}
		monv1Group.Rules = make([]monv1.Rule, len(group.Rules))

		for j, rule := range group.Rules {
			monv1Group.Rules[j] = monv1.Rule{
				Alert: rule.Alert,
				Expr:  intstr.FromString(rule.Expr),
				For:   ptr.To(monv1.Duration(rule.For)),
				Labels: map[string]string{
					"severity": rule.Labels.Severity,
					"source":   rule.Labels.Source,
					"owner":    rule.Labels.Owner,
				},
				Annotations: map[string]string{
					"summary":     rule.Annotations.Summary,
					"description": rule.Annotations.Description,
				},
			}
		}

		monv1Groups[i] = monv1Group
	}

	return monv1Groups
}
