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
	"time"

	monv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/events"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/client"
	"github.com/cactuar-rs/cactuar/pkg/manifests"
	"github.com/cactuar-rs/cactuar/pkg/metrics"
	"github.com/cactuar-rs/cactuar/pkg/namespace"
)

const (
	controllerName = "servicealerts"
	queueBaseDelay = 50 * time.Millisecond
	queueMaxDelay  = 3 * time.Minute
)

// Controller watches ServiceAlert objects and the artifacts generated for
// them, and hands every changed ServiceAlert to the Reconciler. A key is
// never processed by two workers at the same time.
type Controller struct {
	client     *client.Client
	reconciler *Reconciler
	policy     ErrorPolicy
	clock      clock.PassiveClock

	namespaces       namespace.Watcher
	queue            workqueue.TypedRateLimitingInterface[string]
	alertInformer    cache.SharedIndexInformer
	artifactInformer cache.SharedIndexInformer
}

// NewController returns a new ServiceAlert controller.
func NewController(c *client.Client, cfg manifests.ControllerConfig, recorder events.EventRecorder, clk clock.WithTicker) (*Controller, error) {
	resync := cfg.ResyncPeriod.Duration

	alertInformer := cache.NewSharedIndexInformer(
		c.ServiceAlertListWatchForNamespace(metav1.NamespaceAll),
		&unstructured.Unstructured{},
		resync,
		cache.Indexers{cache.NamespaceIndex: cache.MetaNamespaceIndexFunc},
	)

	var artifactInformer cache.SharedIndexInformer
	switch cfg.Artifact {
	case manifests.PrometheusRuleArtifact:
		artifactInformer = cache.NewSharedIndexInformer(
			c.PrometheusRuleListWatchForNamespace(metav1.NamespaceAll, manifests.RulesSelector),
			&monv1.PrometheusRule{},
			resync,
			cache.Indexers{},
		)
	default:
		artifactInformer = cache.NewSharedIndexInformer(
			c.RulesConfigMapListWatchForNamespace(metav1.NamespaceAll, manifests.RulesSelector),
			&corev1.ConfigMap{},
			resync,
			cache.Indexers{},
		)
	}

	queue := workqueue.NewTypedRateLimitingQueueWithConfig[string](
		workqueue.NewTypedItemExponentialFailureRateLimiter[string](queueBaseDelay, queueMaxDelay),
		workqueue.TypedRateLimitingQueueConfig[string]{Name: controllerName, Clock: clk},
	)

	ctrl := &Controller{
		client:           c,
		reconciler:       NewReconciler(c, recorder, clk, cfg.Artifact, cfg.SuccessRequeueInterval.Duration),
		policy:           ErrorPolicy{Interval: cfg.ErrorRequeueInterval.Duration},
		clock:            clk,
		queue:            queue,
		alertInformer:    alertInformer,
		artifactInformer: artifactInformer,
	}

	if cfg.NamespaceSelector == "" {
		ctrl.namespaces = namespace.All{}
	} else {
		w, err := namespace.NewWatcher(resync, c.NamespacesListWatch(cfg.NamespaceSelector), ctrl.enqueueNamespace)
		if err != nil {
			return nil, err
		}
		ctrl.namespaces = w
	}

	_, err := alertInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    ctrl.handleServiceAlertAdd,
		UpdateFunc: ctrl.handleServiceAlertUpdate,
		DeleteFunc: ctrl.handleServiceAlertDelete,
	})
	if err != nil {
		return nil, err
	}

	_, err = artifactInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    nil, // Adds are always caused by the controller itself.
		UpdateFunc: ctrl.handleArtifactUpdate,
		DeleteFunc: ctrl.handleArtifactDelete,
	})
	if err != nil {
		return nil, err
	}

	return ctrl, nil
}

// Run starts the controller, and blocks until the done channel for the given
// context is closed.
func (c *Controller) Run(ctx context.Context, workers int) {
	klog.InfoS("Starting ServiceAlert controller", "workers", workers)
	defer c.queue.ShutDown()

	go c.namespaces.Run(ctx)
	go c.alertInformer.Run(ctx.Done())
	go c.artifactInformer.Run(ctx.Done())

	if !cache.WaitForNamedCacheSync("ServiceAlert controller", ctx.Done(), c.HasSynced) {
		klog.Error("Failed to sync ServiceAlert controller cache")
		return
	}

	for i := 0; i < workers; i++ {
		go c.worker(ctx)
	}

	klog.Info("ServiceAlert controller started")
	<-ctx.Done()
	klog.Info("ServiceAlert controller stopped")
}

// HasSynced returns true once every informer of the controller has synced.
func (c *Controller) HasSynced() bool {
	return c.namespaces.HasSynced() && c.alertInformer.HasSynced() && c.artifactInformer.HasSynced()
}

func (c *Controller) worker(ctx context.Context) {
	for c.processNextWorkItem(ctx) {
	}
}

// processNextWorkItem reconciles the next key and schedules its next
// attempt. Failures never go through the rate limiter, the error policy
// decides when to retry.
func (c *Controller) processNextWorkItem(ctx context.Context) bool {
	key, quit := c.queue.Get()
	if quit {
		return false
	}
	defer c.queue.Done(key)

	start := c.clock.Now()
	action, err := c.sync(ctx, key)
	metrics.ReconcileDuration.Observe(c.clock.Since(start).Seconds())

	if err != nil {
		metrics.ReconcileAttempts.WithLabelValues(metrics.ResultError).Inc()
		ns, name, _ := cache.SplitMetaNamespaceKey(key)
		action = c.policy.OnError(klog.KRef(ns, name), err)
	} else {
		metrics.ReconcileAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
		klog.V(4).InfoS("ServiceAlert successfully synced", "key", key, "next", action)
	}

	c.queue.Forget(key)
	if !action.IsAwaitChange() {
		c.queue.AddAfter(key, action.RequeueAfter)
	}

	return true
}

// sync fetches the ServiceAlert for key from the API and reconciles it. A
// ServiceAlert that no longer exists is dropped, which disarms any pending
// requeue for it.
func (c *Controller) sync(ctx context.Context, key string) (Action, error) {
	ns, name, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		klog.ErrorS(err, "Dropping invalid key", "key", key)
		return AwaitChange(), nil
	}

	if !c.namespaces.Has(ns) {
		klog.V(4).InfoS("Ignoring ServiceAlert in unselected namespace", "key", key)
		return AwaitChange(), nil
	}

	sa, err := c.client.GetServiceAlert(ctx, ns, name)
	switch {
	case apierrors.IsNotFound(err):
		klog.V(4).InfoS("ServiceAlert no longer exists", "key", key)
		return AwaitChange(), nil
	case err != nil:
		return Action{}, NewTransportError(err, "fetching ServiceAlert failed")
	}

	return c.reconciler.Reconcile(ctx, sa)
}

// keyFunc derives a queue key for the given object, while properly handling
// tombstone objects.
func (c *Controller) keyFunc(obj interface{}) (string, bool) {
	k, err := cache.DeletionHandlingMetaNamespaceKeyFunc(obj)
	if err != nil {
		klog.Errorf("Creating ServiceAlert key failed: %v", err)
		return k, false
	}

	return k, true
}

func (c *Controller) inSelectedNamespace(obj interface{}) bool {
	if d, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = d.Obj
	}

	metaObj, ok := obj.(metav1.Object)
	if !ok {
		klog.Errorf("Expected metav1.Object, but got %T", obj)
		return false
	}

	return c.namespaces.Has(metaObj.GetNamespace())
}

func (c *Controller) handleServiceAlertAdd(obj interface{}) {
	key, ok := c.keyFunc(obj)
	if !ok || !c.inSelectedNamespace(obj) {
		return
	}

	klog.V(4).InfoS("ServiceAlert added", "key", key)
	c.queue.Add(key)
}

func (c *Controller) handleServiceAlertUpdate(oldObj, newObj interface{}) {
	key, ok := c.keyFunc(newObj)
	if !ok || !c.inSelectedNamespace(newObj) {
		return
	}

	oldSA, ok := oldObj.(metav1.Object)
	if !ok {
		return
	}
	newSA, ok := newObj.(metav1.Object)
	if !ok {
		return
	}

	if !specOrDeletionChanged(oldSA, newSA) {
		klog.V(5).InfoS("Skipping ServiceAlert update without spec or deletion change", "key", key)
		return
	}

	klog.V(4).InfoS("ServiceAlert updated", "key", key)
	c.queue.Add(key)
}

// specOrDeletionChanged returns false for updates only touching status or
// finalizers, which are written by the controller itself.
func specOrDeletionChanged(oldObj, newObj metav1.Object) bool {
	if oldObj.GetResourceVersion() == newObj.GetResourceVersion() {
		return false
	}

	if oldObj.GetGeneration() != newObj.GetGeneration() {
		return true
	}

	return (oldObj.GetDeletionTimestamp() == nil) != (newObj.GetDeletionTimestamp() == nil)
}

func (c *Controller) handleServiceAlertDelete(obj interface{}) {
	key, ok := c.keyFunc(obj)
	if !ok || !c.inSelectedNamespace(obj) {
		return
	}

	klog.V(4).InfoS("ServiceAlert deleted", "key", key)
	c.queue.Add(key)
}

func (c *Controller) handleArtifactUpdate(oldObj, newObj interface{}) {
	oldMeta, ok := oldObj.(metav1.Object)
	if !ok {
		return
	}
	newMeta, ok := newObj.(metav1.Object)
	if !ok {
		return
	}

	if oldMeta.GetResourceVersion() == newMeta.GetResourceVersion() {
		return
	}

	c.enqueueOwner(newMeta, "updated")
}

func (c *Controller) handleArtifactDelete(obj interface{}) {
	if d, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = d.Obj
	}

	m, ok := obj.(metav1.Object)
	if !ok {
		return
	}

	c.enqueueOwner(m, "deleted")
}

// enqueueOwner queues the ServiceAlert controlling the artifact, if any.
func (c *Controller) enqueueOwner(artifact metav1.Object, change string) {
	owner := serviceAlertOwner(artifact.GetOwnerReferences())
	if owner == "" {
		klog.V(4).InfoS("Ignoring artifact without ServiceAlert owner", "artifact", klog.KObj(artifact))
		return
	}

	if !c.namespaces.Has(artifact.GetNamespace()) {
		return
	}

	key := artifact.GetNamespace() + "/" + owner
	klog.V(4).InfoS("Artifact "+change+", queuing sync of ServiceAlert", "artifact", klog.KObj(artifact), "key", key)
	c.queue.Add(key)
}

// enqueueNamespace queues every known ServiceAlert of ns. It is called when
// ns enters or leaves the namespace selection.
func (c *Controller) enqueueNamespace(ns string) {
	objs, err := c.alertInformer.GetIndexer().ByIndex(cache.NamespaceIndex, ns)
	if err != nil {
		klog.ErrorS(err, "Listing ServiceAlerts of namespace failed", "namespace", ns)
		return
	}

	for _, obj := range objs {
		if key, ok := c.keyFunc(obj); ok {
			c.queue.Add(key)
		}
	}
}

// serviceAlertOwner returns the name of the controlling owner reference of
// kind ServiceAlert, or an empty string if there is none.
func serviceAlertOwner(refs []metav1.OwnerReference) string {
	apiVersion := cactuarv1.SchemeGroupVersion.String()

	for _, ref := range refs {
		if ref.APIVersion == apiVersion && ref.Kind == cactuarv1.ServiceAlertKind && ref.Controller != nil && *ref.Controller {
			return ref.Name
		}
	}

	return ""
}
