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

package alert

import (
	"context"
	"fmt"
	"time"

	monv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/events"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/manifests"
	"github.com/cactuar-rs/cactuar/pkg/metrics"
	"github.com/cactuar-rs/cactuar/pkg/rules"
)

const (
	// DeleteReason is the reason of the event published on cleanup.
	DeleteReason = "Delete"
	// ReconcilingAction is the action of every published event.
	ReconcilingAction = "Reconciling"
)

// Client is the subset of API operations the Reconciler needs.
type Client interface {
	AddServiceAlertFinalizer(ctx context.Context, sa *cactuarv1.ServiceAlert) error
	RemoveServiceAlertFinalizer(ctx context.Context, sa *cactuarv1.ServiceAlert) error
	PatchServiceAlertStatus(ctx context.Context, sa *cactuarv1.ServiceAlert, status cactuarv1.ServiceAlertStatus) error
	ApplyConfigMap(ctx context.Context, cm *corev1.ConfigMap) error
	ApplyPrometheusRule(ctx context.Context, pr *monv1.PrometheusRule) error
}

// Reconciler drives a single ServiceAlert towards its desired state. It
// holds no per-object state; callers must not reconcile the same object
// concurrently.
type Reconciler struct {
	client   Client
	recorder events.EventRecorder
	clock    clock.PassiveClock

	artifact       manifests.ArtifactKind
	requeueSuccess time.Duration
}

// NewReconciler returns a Reconciler writing artifacts of the given kind.
func NewReconciler(c Client, recorder events.EventRecorder, clk clock.PassiveClock, artifact manifests.ArtifactKind, requeueSuccess time.Duration) *Reconciler {
	return &Reconciler{
		client:         c,
		recorder:       recorder,
		clock:          clk,
		artifact:       artifact,
		requeueSuccess: requeueSuccess,
	}
}

// Reconcile applies sa, or cleans it up once its deletion was requested.
func (r *Reconciler) Reconcile(ctx context.Context, sa *cactuarv1.ServiceAlert) (Action, error) {
	if sa.IsBeingDeleted() {
		if !sa.HasFinalizer() {
			klog.V(4).InfoS("ServiceAlert is being deleted without finalizer, nothing to do", "serviceAlert", klog.KObj(sa))
			return AwaitChange(), nil
		}
		return r.cleanup(ctx, sa)
	}

	return r.apply(ctx, sa)
}

// apply attaches the finalizer, writes the generated artifact and records
// the reconciliation in the status subresource.
func (r *Reconciler) apply(ctx context.Context, sa *cactuarv1.ServiceAlert) (Action, error) {
	if sa.Namespace == "" {
		return Action{}, NewMissingFieldError("metadata.namespace")
	}
	if sa.UID == "" {
		return Action{}, NewMissingFieldError("metadata.uid")
	}

	if err := r.client.AddServiceAlertFinalizer(ctx, sa); err != nil {
		return Action{}, NewFinalizerError(err, "attaching finalizer failed")
	}

	doc, err := rules.Compile(&sa.Spec)
	if err != nil {
		return Action{}, NewValidationError(err, "translating alerts failed")
	}

	if err := manifests.ValidateArtifactLabels(sa); err != nil {
		return Action{}, NewValidationError(err, "invalid artifact labels")
	}

	switch r.artifact {
	case manifests.PrometheusRuleArtifact:
		if err := r.client.ApplyPrometheusRule(ctx, manifests.NewPrometheusRule(sa, doc)); err != nil {
			return Action{}, NewTransportError(err, "applying rules artifact failed")
		}
	default:
		cm, err := manifests.NewRulesConfigMap(sa, doc)
		if err != nil {
			return Action{}, NewValidationError(err, "building rules artifact failed")
		}
		if err := r.client.ApplyConfigMap(ctx, cm); err != nil {
			return Action{}, NewTransportError(err, "applying rules artifact failed")
		}
	}

	now := r.clock.Now()
	status := cactuarv1.ServiceAlertStatus{
		LastReconciledAt:        &metav1.Time{Time: now},
		ReconciliationExpiresAt: &metav1.Time{Time: now.Add(r.requeueSuccess)},
	}
	if err := r.client.PatchServiceAlertStatus(ctx, sa, status); err != nil {
		return Action{}, NewTransportError(err, "patching status failed")
	}

	metrics.TranslationRules.WithLabelValues(sa.Namespace, sa.Name).Set(float64(doc.RuleCount()))
	klog.V(4).InfoS("ServiceAlert applied", "serviceAlert", klog.KObj(sa), "rules", doc.RuleCount(), "artifact", r.artifact)

	return Requeue(r.requeueSuccess), nil
}

// cleanup publishes the deletion event and releases the finalizer. The
// artifact is left to garbage collection through its owner reference.
func (r *Reconciler) cleanup(ctx context.Context, sa *cactuarv1.ServiceAlert) (Action, error) {
	r.recorder.Eventf(sa, nil, corev1.EventTypeNormal, DeleteReason, ReconcilingAction, "Delete `%s`", sa.Name)

	if err := r.client.RemoveServiceAlertFinalizer(ctx, sa); err != nil {
		return Action{}, NewFinalizerError(err, "removing finalizer failed")
	}

	metrics.TranslationRules.DeleteLabelValues(sa.Namespace, sa.Name)
	klog.InfoS("ServiceAlert cleaned up", "serviceAlert", klog.KObj(sa))

	return AwaitChange(), nil
}

// ErrorPolicy maps every reconciliation failure to a fixed delay.
type ErrorPolicy struct {
	Interval time.Duration
}

// OnError logs err and returns the Action scheduling the next attempt of
// the ServiceAlert identified by ref.
func (p ErrorPolicy) OnError(ref klog.ObjectRef, err error) Action {
	kind := KindOf(err)
	metrics.ReconcileErrors.WithLabelValues(string(kind)).Inc()
	klog.ErrorS(err, "Reconciling ServiceAlert failed", "serviceAlert", ref, "kind", kind, "retryAfter", p.Interval)

	return Requeue(p.Interval)
}

func (p ErrorPolicy) String() string {
	return fmt.Sprintf("fixed interval %s", p.Interval)
}
