// Copyright 2018 The Cactuar Authors
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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	monv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	monitoring "github.com/prometheus-operator/prometheus-operator/pkg/client/versioned"
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclient "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/events"
	"k8s.io/utils/ptr"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
)

// Scheme knows about the built-in types and the cactuar.rs types. It is used
// to resolve object references of published events.
var Scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(Scheme))
	utilruntime.Must(cactuarv1.AddToScheme(Scheme))
}

// Client wraps the clients the controller talks to the API with. Every write
// is a patch issued with the cactuar field manager.
type Client struct {
	kclient kubernetes.Interface
	dclient dynamic.Interface
	mclient monitoring.Interface
	eclient apiextensionsclient.Interface
}

// New returns a Client for the given rest config.
func New(cfg *rest.Config) (*Client, error) {
	mclient, err := monitoring.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating monitoring client")
	}

	kclient, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating kubernetes clientset client")
	}

	dclient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating dynamic client")
	}

	eclient, err := apiextensionsclient.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating apiextensions client")
	}

	return NewForClients(kclient, dclient, mclient, eclient), nil
}

// NewForClients returns a Client using already constructed clients.
func NewForClients(kclient kubernetes.Interface, dclient dynamic.Interface, mclient monitoring.Interface, eclient apiextensionsclient.Interface) *Client {
	return &Client{
		kclient: kclient,
		dclient: dclient,
		mclient: mclient,
		eclient: eclient,
	}
}

func (c *Client) KubernetesInterface() kubernetes.Interface {
	return c.kclient
}

// NewEventRecorder returns a recorder publishing events.k8s.io/v1 events
// until ctx is done.
func (c *Client) NewEventRecorder(ctx context.Context) events.EventRecorder {
	broadcaster := events.NewBroadcaster(&events.EventSinkImpl{Interface: c.kclient.EventsV1()})
	broadcaster.StartRecordingToSink(ctx.Done())
	go func() {
		<-ctx.Done()
		broadcaster.Shutdown()
	}()

	return broadcaster.NewRecorder(Scheme, cactuarv1.ReportingController)
}

func (c *Client) serviceAlerts(ns string) dynamic.ResourceInterface {
	return c.dclient.Resource(cactuarv1.SchemeGroupVersionResource).Namespace(ns)
}

// ServiceAlertListWatchForNamespace returns a ListWatch on ServiceAlerts. The
// watched objects are *unstructured.Unstructured.
func (c *Client) ServiceAlertListWatchForNamespace(ns string) *cache.ListWatch {
	return &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			return c.serviceAlerts(ns).List(context.TODO(), options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			return c.serviceAlerts(ns).Watch(context.TODO(), options)
		},
	}
}

// RulesConfigMapListWatchForNamespace returns a ListWatch on ConfigMaps
// generated by the controller.
func (c *Client) RulesConfigMapListWatchForNamespace(ns, selector string) *cache.ListWatch {
	return &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			options.LabelSelector = selector
			return c.kclient.CoreV1().ConfigMaps(ns).List(context.TODO(), options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			options.LabelSelector = selector
			return c.kclient.CoreV1().ConfigMaps(ns).Watch(context.TODO(), options)
		},
	}
}

// PrometheusRuleListWatchForNamespace returns a ListWatch on PrometheusRules
// generated by the controller.
func (c *Client) PrometheusRuleListWatchForNamespace(ns, selector string) *cache.ListWatch {
	return &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			options.LabelSelector = selector
			return c.mclient.MonitoringV1().PrometheusRules(ns).List(context.TODO(), options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			options.LabelSelector = selector
			return c.mclient.MonitoringV1().PrometheusRules(ns).Watch(context.TODO(), options)
		},
	}
}

// NamespacesListWatch returns a ListWatch on namespaces matching selector.
func (c *Client) NamespacesListWatch(selector string) *cache.ListWatch {
	return &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			options.LabelSelector = selector
			return c.kclient.CoreV1().Namespaces().List(context.TODO(), options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			options.LabelSelector = selector
			return c.kclient.CoreV1().Namespaces().Watch(context.TODO(), options)
		},
	}
}

// ServiceAlertFromUnstructured converts u to a typed ServiceAlert.
func ServiceAlertFromUnstructured(u *unstructured.Unstructured) (*cactuarv1.ServiceAlert, error) {
	sa := &cactuarv1.ServiceAlert{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.UnstructuredContent(), sa); err != nil {
		return nil, errors.Wrapf(err, "converting %s %s/%s", cactuarv1.ServiceAlertKind, u.GetNamespace(), u.GetName())
	}

	sa.APIVersion = cactuarv1.SchemeGroupVersion.String()
	sa.Kind = cactuarv1.ServiceAlertKind

	return sa, nil
}

// GetServiceAlert fetches the ServiceAlert from the API.
func (c *Client) GetServiceAlert(ctx context.Context, namespace, name string) (*cactuarv1.ServiceAlert, error) {
	u, err := c.serviceAlerts(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	return ServiceAlertFromUnstructured(u)
}

// AddServiceAlertFinalizer sets the controller finalizer on sa.
func (c *Client) AddServiceAlertFinalizer(ctx context.Context, sa *cactuarv1.ServiceAlert) error {
	if sa.HasFinalizer() {
		return nil
	}

	finalizers := append(append([]string{}, sa.Finalizers...), cactuarv1.Finalizer)
	if err := c.patchFinalizers(ctx, sa, finalizers); err != nil {
		return errors.Wrap(err, "adding finalizer failed")
	}

	sa.Finalizers = finalizers
	return nil
}

// RemoveServiceAlertFinalizer clears the controller finalizer from sa. Other
// finalizers are kept.
func (c *Client) RemoveServiceAlertFinalizer(ctx context.Context, sa *cactuarv1.ServiceAlert) error {
	if !sa.HasFinalizer() {
		return nil
	}

	var finalizers []string
	for _, f := range sa.Finalizers {
		if f != cactuarv1.Finalizer {
			finalizers = append(finalizers, f)
		}
	}

	if err := c.patchFinalizers(ctx, sa, finalizers); err != nil {
		return errors.Wrap(err, "removing finalizer failed")
	}

	sa.Finalizers = finalizers
	return nil
}

// patchFinalizers replaces the finalizer list with a merge patch. The
// resource version, when known, makes the patch fail on concurrent changes
// instead of dropping another writer's finalizer.
func (c *Client) patchFinalizers(ctx context.Context, sa *cactuarv1.ServiceAlert, finalizers []string) error {
	metadata := map[string]interface{}{
		"finalizers": finalizers,
	}
	if sa.ResourceVersion != "" {
		metadata["resourceVersion"] = sa.ResourceVersion
	}

	data, err := json.Marshal(map[string]interface{}{"metadata": metadata})
	if err != nil {
		return err
	}

	_, err = c.serviceAlerts(sa.Namespace).Patch(ctx, sa.Name, types.MergePatchType, data,
		metav1.PatchOptions{FieldManager: cactuarv1.FieldManager})
	return err
}

// PatchServiceAlertStatus merges status into the status subresource of sa.
func (c *Client) PatchServiceAlertStatus(ctx context.Context, sa *cactuarv1.ServiceAlert, status cactuarv1.ServiceAlertStatus) error {
	data, err := json.Marshal(map[string]interface{}{"status": status})
	if err != nil {
		return err
	}

	_, err = c.serviceAlerts(sa.Namespace).Patch(ctx, sa.Name, types.MergePatchType, data,
		metav1.PatchOptions{FieldManager: cactuarv1.FieldManager}, "status")
	return errors.Wrap(err, "patching ServiceAlert status failed")
}

func applyOptions() metav1.PatchOptions {
	return metav1.PatchOptions{
		FieldManager: cactuarv1.FieldManager,
		Force:        ptr.To(true),
	}
}

// ApplyConfigMap creates or updates cm with server-side apply.
func (c *Client) ApplyConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	data, err := json.Marshal(cm)
	if err != nil {
		return err
	}

	_, err = c.kclient.CoreV1().ConfigMaps(cm.Namespace).Patch(ctx, cm.Name, types.ApplyPatchType, data, applyOptions())
	return errors.Wrap(err, "applying ConfigMap object failed")
}

// ApplyPrometheusRule creates or updates pr with server-side apply.
func (c *Client) ApplyPrometheusRule(ctx context.Context, pr *monv1.PrometheusRule) error {
	data, err := json.Marshal(pr)
	if err != nil {
		return err
	}

	_, err = c.mclient.MonitoringV1().PrometheusRules(pr.Namespace).Patch(ctx, pr.Name, types.ApplyPatchType, data, applyOptions())
	return errors.Wrap(err, "applying PrometheusRule object failed")
}

// ApplyCRD creates or updates crd with server-side apply.
func (c *Client) ApplyCRD(ctx context.Context, crd *apiextensionsv1.CustomResourceDefinition) error {
	data, err := json.Marshal(crd)
	if err != nil {
		return err
	}

	_, err = c.eclient.ApiextensionsV1().CustomResourceDefinitions().Patch(ctx, crd.Name, types.ApplyPatchType, data, applyOptions())
	return errors.Wrap(err, "applying CustomResourceDefinition object failed")
}

// WaitForCRDReady polls until crd is established.
func (c *Client) WaitForCRDReady(ctx context.Context, crd *apiextensionsv1.CustomResourceDefinition) error {
	return wait.PollUntilContextTimeout(ctx, time.Second, time.Minute, true, func(ctx context.Context) (bool, error) {
		return c.CRDReady(ctx, crd)
	})
}

func (c *Client) CRDReady(ctx context.Context, crd *apiextensionsv1.CustomResourceDefinition) (bool, error) {
	crdEst, err := c.eclient.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, crd.Name, metav1.GetOptions{})
	if err != nil {
		return false, err
	}

	for _, cond := range crdEst.Status.Conditions {
		switch cond.Type {
		case apiextensionsv1.Established:
			if cond.Status == apiextensionsv1.ConditionTrue {
				return true, nil
			}
		case apiextensionsv1.NamesAccepted:
			if cond.Status == apiextensionsv1.ConditionFalse {
				return false, fmt.Errorf("CRD naming conflict (%s): %v", crd.Name, cond.Reason)
			}
		}
	}

	return false, nil
}
