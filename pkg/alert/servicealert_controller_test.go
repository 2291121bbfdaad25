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
	"testing"
	"time"

	"github.com/pkg/errors"
	monfake "github.com/prometheus-operator/prometheus-operator/pkg/client/versioned/fake"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	corev1 "k8s.io/api/core/v1"
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"
	"k8s.io/client-go/tools/events"
	"k8s.io/client-go/util/workqueue"
	testingclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/client"
	"github.com/cactuar-rs/cactuar/pkg/manifests"
)

// recordingQueue captures the delayed additions of the controller.
type recordingQueue struct {
	workqueue.TypedRateLimitingInterface[string]
	after map[string]time.Duration
}

func (q *recordingQueue) AddAfter(key string, d time.Duration) {
	q.after[key] = d
}

// selectedNamespaces is a static namespace selection.
type selectedNamespaces struct {
	sets.Set[string]
}

func (selectedNamespaces) Run(ctx context.Context) { <-ctx.Done() }
func (selectedNamespaces) HasSynced() bool         { return true }
func (s selectedNamespaces) Namespaces() sets.Set[string] {
	return s.Clone()
}

type testController struct {
	*Controller

	queue   *recordingQueue
	kclient *fake.Clientset
	dclient *dynamicfake.FakeDynamicClient
	applied []clienttesting.PatchAction
}

func toUnstructured(t *testing.T, sa *cactuarv1.ServiceAlert) *unstructured.Unstructured {
	t.Helper()

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(sa)
	require.NoError(t, err)

	u := &unstructured.Unstructured{Object: content}
	u.SetAPIVersion(cactuarv1.SchemeGroupVersion.String())
	u.SetKind(cactuarv1.ServiceAlertKind)
	return u
}

func newTestController(t *testing.T, objs ...*cactuarv1.ServiceAlert) *testController {
	t.Helper()

	var dobjs []runtime.Object
	for _, sa := range objs {
		dobjs = append(dobjs, toUnstructured(t, sa))
	}

	dclient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			cactuarv1.SchemeGroupVersionResource: cactuarv1.ServiceAlertListKind,
		},
		dobjs...,
	)
	kclient := fake.NewSimpleClientset()

	tc := &testController{kclient: kclient, dclient: dclient}

	// The fake clientset does not implement server-side apply.
	kclient.PrependReactor("patch", "configmaps", func(action clienttesting.Action) (bool, runtime.Object, error) {
		patch := action.(clienttesting.PatchAction)
		tc.applied = append(tc.applied, patch)
		return true, &corev1.ConfigMap{}, nil
	})

	c := client.NewForClients(kclient, dclient, monfake.NewSimpleClientset(), apiextensionsfake.NewSimpleClientset())

	cfg := manifests.NewDefaultConfig().Controller
	ctrl, err := NewController(c, cfg, events.NewFakeRecorder(10), testingclock.NewFakeClock(now))
	require.NoError(t, err)

	tc.queue = &recordingQueue{TypedRateLimitingInterface: ctrl.queue, after: map[string]time.Duration{}}
	ctrl.queue = tc.queue
	tc.Controller = ctrl

	return tc
}

func (tc *testController) get(t *testing.T, ns, name string) *unstructured.Unstructured {
	t.Helper()

	u, err := tc.dclient.Resource(cactuarv1.SchemeGroupVersionResource).Namespace(ns).Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(t, err)
	return u
}

func TestSyncApply(t *testing.T) {
	tc := newTestController(t, newServiceAlert())

	action, err := tc.sync(context.Background(), "shop/checkout")
	require.NoError(t, err)
	require.Equal(t, Requeue(5*time.Minute), action)

	require.Len(t, tc.applied, 1)
	patch := tc.applied[0]
	require.Equal(t, types.ApplyPatchType, patch.GetPatchType())
	require.Equal(t, "checkout", patch.GetName())
	require.Equal(t, "shop", patch.GetNamespace())

	body := string(patch.GetPatch())
	require.Equal(t, "ConfigMap", gjson.Get(body, "kind").String())
	require.Equal(t, "prom-rule", gjson.Get(body, "metadata.labels.rules").String())
	require.Equal(t, "ServiceAlert", gjson.Get(body, "metadata.ownerReferences.0.kind").String())
	require.True(t, gjson.Get(body, "metadata.ownerReferences.0.controller").Bool())
	require.Contains(t, gjson.Get(body, "data.team-payments").String(), "name: Replica Alerts")

	u := tc.get(t, "shop", "checkout")
	require.Equal(t, []string{cactuarv1.Finalizer}, u.GetFinalizers())

	lastReconciled, found, err := unstructured.NestedString(u.Object, "status", "lastReconciledAt")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, now.Format(time.RFC3339), lastReconciled)

	expires, _, _ := unstructured.NestedString(u.Object, "status", "reconciliationExpiresAt")
	require.Equal(t, now.Add(5*time.Minute).Format(time.RFC3339), expires)
}

func TestSyncCleanup(t *testing.T) {
	sa := newServiceAlert()
	sa.Finalizers = []string{"other.example.com", cactuarv1.Finalizer}
	sa.DeletionTimestamp = &metav1.Time{Time: now}
	tc := newTestController(t, sa)

	action, err := tc.sync(context.Background(), "shop/checkout")
	require.NoError(t, err)
	require.True(t, action.IsAwaitChange())
	require.Empty(t, tc.applied)

	u := tc.get(t, "shop", "checkout")
	require.Equal(t, []string{"other.example.com"}, u.GetFinalizers())
}

func TestSyncNotFound(t *testing.T) {
	tc := newTestController(t)

	action, err := tc.sync(context.Background(), "shop/checkout")
	require.NoError(t, err)
	require.True(t, action.IsAwaitChange())
}

func TestSyncUnselectedNamespace(t *testing.T) {
	tc := newTestController(t, newServiceAlert())
	tc.namespaces = selectedNamespaces{sets.New("billing")}

	action, err := tc.sync(context.Background(), "shop/checkout")
	require.NoError(t, err)
	require.True(t, action.IsAwaitChange())
	require.Empty(t, tc.applied)
}

func TestProcessNextWorkItemSchedulesRequeue(t *testing.T) {
	tc := newTestController(t, newServiceAlert())

	tc.queue.Add("shop/checkout")
	require.True(t, tc.processNextWorkItem(context.Background()))

	require.Equal(t, map[string]time.Duration{"shop/checkout": 5 * time.Minute}, tc.queue.after)
	require.Equal(t, 0, tc.queue.Len())
}

func TestProcessNextWorkItemFixedBackoff(t *testing.T) {
	tc := newTestController(t, newServiceAlert())
	tc.dclient.PrependReactor("get", cactuarv1.ServiceAlertResource, func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})

	for i := 0; i < 3; i++ {
		tc.queue.Add("shop/checkout")
		require.True(t, tc.processNextWorkItem(context.Background()))

		require.Equal(t, 60*time.Second, tc.queue.after["shop/checkout"])
		require.Equal(t, 0, tc.queue.NumRequeues("shop/checkout"))
	}
}

func TestProcessNextWorkItemArtifactFailure(t *testing.T) {
	tc := newTestController(t, newServiceAlert())
	tc.kclient.PrependReactor("patch", "configmaps", func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})

	tc.queue.Add("shop/checkout")
	require.True(t, tc.processNextWorkItem(context.Background()))
	require.Equal(t, 60*time.Second, tc.queue.after["shop/checkout"])

	u := tc.get(t, "shop", "checkout")
	_, found, _ := unstructured.NestedString(u.Object, "status", "lastReconciledAt")
	require.False(t, found)
}

func TestProcessNextWorkItemNotFoundDropsKey(t *testing.T) {
	tc := newTestController(t)

	tc.queue.Add("shop/checkout")
	require.True(t, tc.processNextWorkItem(context.Background()))
	require.Empty(t, tc.queue.after)
}

func TestProcessNextWorkItemShutdown(t *testing.T) {
	tc := newTestController(t)
	tc.queue.ShutDown()

	require.False(t, tc.processNextWorkItem(context.Background()))
}

func TestHandleArtifactEvents(t *testing.T) {
	tc := newTestController(t)

	owned := func(rv string, refs ...metav1.OwnerReference) *corev1.ConfigMap {
		return &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
			Name:            "checkout",
			Namespace:       "shop",
			ResourceVersion: rv,
			OwnerReferences: refs,
		}}
	}
	ref := manifests.OwnerReference(newServiceAlert())

	tc.handleArtifactUpdate(owned("1", ref), owned("1", ref))
	require.Equal(t, 0, tc.queue.Len())

	tc.handleArtifactUpdate(owned("1"), owned("2"))
	require.Equal(t, 0, tc.queue.Len())

	tc.handleArtifactUpdate(owned("1", ref), owned("2", ref))
	require.Equal(t, 1, tc.queue.Len())

	key, _ := tc.queue.Get()
	require.Equal(t, "shop/checkout", key)
	tc.queue.Done(key)

	tc.handleArtifactDelete(owned("3", ref))
	require.Equal(t, 1, tc.queue.Len())
}

func TestHandleServiceAlertUpdate(t *testing.T) {
	tc := newTestController(t)

	base := func(rv string, generation int64) *unstructured.Unstructured {
		sa := newServiceAlert()
		sa.ResourceVersion = rv
		sa.Generation = generation
		return toUnstructured(t, sa)
	}

	// Status and finalizer writes leave the generation untouched.
	tc.handleServiceAlertUpdate(base("1", 1), base("2", 1))
	require.Equal(t, 0, tc.queue.Len())

	tc.handleServiceAlertUpdate(base("2", 1), base("3", 2))
	require.Equal(t, 1, tc.queue.Len())
}

func TestSpecOrDeletionChanged(t *testing.T) {
	deleting := &metav1.ObjectMeta{ResourceVersion: "3", Generation: 1, DeletionTimestamp: &metav1.Time{Time: now}}

	for _, tc := range []struct {
		name     string
		old, new *metav1.ObjectMeta
		expected bool
	}{
		{
			name:     "resync",
			old:      &metav1.ObjectMeta{ResourceVersion: "1", Generation: 1},
			new:      &metav1.ObjectMeta{ResourceVersion: "1", Generation: 1},
			expected: false,
		},
		{
			name:     "status only",
			old:      &metav1.ObjectMeta{ResourceVersion: "1", Generation: 1},
			new:      &metav1.ObjectMeta{ResourceVersion: "2", Generation: 1},
			expected: false,
		},
		{
			name:     "spec change",
			old:      &metav1.ObjectMeta{ResourceVersion: "1", Generation: 1},
			new:      &metav1.ObjectMeta{ResourceVersion: "2", Generation: 2},
			expected: true,
		},
		{
			name:     "deletion requested",
			old:      &metav1.ObjectMeta{ResourceVersion: "2", Generation: 1},
			new:      deleting,
			expected: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, specOrDeletionChanged(tc.old, tc.new))
		})
	}
}

func TestServiceAlertOwner(t *testing.T) {
	ref := manifests.OwnerReference(newServiceAlert())
	require.Equal(t, "checkout", serviceAlertOwner([]metav1.OwnerReference{ref}))

	notController := ref
	notController.Controller = ptr.To(false)
	require.Equal(t, "", serviceAlertOwner([]metav1.OwnerReference{notController}))

	other := metav1.OwnerReference{APIVersion: "apps/v1", Kind: "Deployment", Name: "checkout", Controller: ptr.To(true)}
	require.Equal(t, "", serviceAlertOwner([]metav1.OwnerReference{other}))
}
