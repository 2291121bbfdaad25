// Copyright 2020 The Cactuar Authors
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
	"testing"
	"time"

	monv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	monfake "github.com/prometheus-operator/prometheus-operator/pkg/client/versioned/fake"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	v1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
)

const ns = "shop"

func newServiceAlert(t *testing.T, finalizers ...string) *unstructured.Unstructured {
	t.Helper()

	sa := &cactuarv1.ServiceAlert{
		TypeMeta: metav1.TypeMeta{
			APIVersion: cactuarv1.SchemeGroupVersion.String(),
			Kind:       cactuarv1.ServiceAlertKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:       "checkout",
			Namespace:  ns,
			UID:        types.UID("8d1f3b0c-2222-4000-8000-000000000003"),
			Finalizers: finalizers,
		},
		Spec: cactuarv1.ServiceAlertSpec{
			CommonLabels:   cactuarv1.CommonLabels{Owner: "team-payments", Origin: "cactuar"},
			DeploymentName: "checkout",
			Alerts: cactuarv1.Alerts{
				Replica: map[cactuarv1.ReplicaAlert][]cactuarv1.AlertConfig{
					cactuarv1.Count: {{Operation: cactuarv1.LessThan, Value: 2, For: "5m"}},
				},
			},
		},
	}

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(sa)
	require.NoError(t, err)
	return &unstructured.Unstructured{Object: content}
}

func newDynamicClient(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			cactuarv1.SchemeGroupVersionResource: cactuarv1.ServiceAlertListKind,
		},
		objs...,
	)
}

func newClient(dclient *dynamicfake.FakeDynamicClient) (*Client, *fake.Clientset, *monfake.Clientset, *apiextensionsfake.Clientset) {
	kclient := fake.NewSimpleClientset()
	mclient := monfake.NewSimpleClientset()
	eclient := apiextensionsfake.NewSimpleClientset()
	return NewForClients(kclient, dclient, mclient, eclient), kclient, mclient, eclient
}

// capturePatches records the patches of resource and answers them with
// an empty object, since the fake clientsets don't implement server-side
// apply.
func capturePatches(f interface {
	PrependReactor(verb, resource string, reaction clienttesting.ReactionFunc)
}, resource string, obj runtime.Object) *[]clienttesting.PatchAction {
	patches := &[]clienttesting.PatchAction{}
	f.PrependReactor("patch", resource, func(action clienttesting.Action) (bool, runtime.Object, error) {
		*patches = append(*patches, action.(clienttesting.PatchAction))
		return true, obj, nil
	})
	return patches
}

func TestGetServiceAlert(t *testing.T) {
	c, _, _, _ := newClient(newDynamicClient(newServiceAlert(t)))

	sa, err := c.GetServiceAlert(context.Background(), ns, "checkout")
	require.NoError(t, err)
	require.Equal(t, "checkout", sa.Name)
	require.Equal(t, "cactuar.rs/v1", sa.APIVersion)
	require.Equal(t, cactuarv1.ServiceAlertKind, sa.Kind)
	require.Equal(t, "team-payments", sa.Spec.CommonLabels.Owner)
	require.Len(t, sa.Spec.Alerts.Replica[cactuarv1.Count], 1)
}

func TestServiceAlertFinalizer(t *testing.T) {
	dclient := newDynamicClient(newServiceAlert(t, "other.example.com"))
	c, _, _, _ := newClient(dclient)
	ctx := context.Background()

	sa, err := c.GetServiceAlert(ctx, ns, "checkout")
	require.NoError(t, err)

	require.NoError(t, c.AddServiceAlertFinalizer(ctx, sa))
	require.Equal(t, []string{"other.example.com", cactuarv1.Finalizer}, sa.Finalizers)

	sa, err = c.GetServiceAlert(ctx, ns, "checkout")
	require.NoError(t, err)
	require.Equal(t, []string{"other.example.com", cactuarv1.Finalizer}, sa.Finalizers)

	// Adding twice issues no request.
	actions := len(dclient.Actions())
	require.NoError(t, c.AddServiceAlertFinalizer(ctx, sa))
	require.Len(t, dclient.Actions(), actions)

	require.NoError(t, c.RemoveServiceAlertFinalizer(ctx, sa))
	sa, err = c.GetServiceAlert(ctx, ns, "checkout")
	require.NoError(t, err)
	require.Equal(t, []string{"other.example.com"}, sa.Finalizers)
}

func TestRemoveLastFinalizer(t *testing.T) {
	dclient := newDynamicClient(newServiceAlert(t, cactuarv1.Finalizer))
	patches := capturePatches(dclient, cactuarv1.ServiceAlertResource, newServiceAlert(t))
	c, _, _, _ := newClient(dclient)
	ctx := context.Background()

	sa, err := c.GetServiceAlert(ctx, ns, "checkout")
	require.NoError(t, err)
	sa.ResourceVersion = "42"

	require.NoError(t, c.RemoveServiceAlertFinalizer(ctx, sa))
	require.Empty(t, sa.Finalizers)

	require.Len(t, *patches, 1)
	patch := (*patches)[0]
	require.Equal(t, types.MergePatchType, patch.GetPatchType())

	body := string(patch.GetPatch())
	finalizers := gjson.Get(body, "metadata.finalizers")
	require.True(t, finalizers.Exists())
	require.Equal(t, gjson.Null, finalizers.Type)
	require.Equal(t, "42", gjson.Get(body, "metadata.resourceVersion").String())
}

func TestPatchServiceAlertStatus(t *testing.T) {
	dclient := newDynamicClient(newServiceAlert(t))
	patches := capturePatches(dclient, cactuarv1.ServiceAlertResource, newServiceAlert(t))
	c, _, _, _ := newClient(dclient)
	ctx := context.Background()

	sa, err := c.GetServiceAlert(ctx, ns, "checkout")
	require.NoError(t, err)

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	err = c.PatchServiceAlertStatus(ctx, sa, cactuarv1.ServiceAlertStatus{
		LastReconciledAt:        &metav1.Time{Time: now},
		ReconciliationExpiresAt: &metav1.Time{Time: now.Add(5 * time.Minute)},
	})
	require.NoError(t, err)

	require.Len(t, *patches, 1)
	patch := (*patches)[0]
	require.Equal(t, "status", patch.GetSubresource())
	require.Equal(t, types.MergePatchType, patch.GetPatchType())

	body := string(patch.GetPatch())
	require.Equal(t, "2025-03-14T09:26:53Z", gjson.Get(body, "status.lastReconciledAt").String())
	require.Equal(t, "2025-03-14T09:31:53Z", gjson.Get(body, "status.reconciliationExpiresAt").String())
	require.False(t, gjson.Get(body, "spec").Exists())
}

func TestApplyConfigMap(t *testing.T) {
	c, kclient, _, _ := newClient(newDynamicClient())
	patches := capturePatches(kclient, "configmaps", &v1.ConfigMap{})

	cm := &v1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: "checkout", Namespace: ns},
		Data:       map[string]string{"team-payments": "groups: []\n"},
	}
	require.NoError(t, c.ApplyConfigMap(context.Background(), cm))

	require.Len(t, *patches, 1)
	patch := (*patches)[0]
	require.Equal(t, types.ApplyPatchType, patch.GetPatchType())
	require.Equal(t, "checkout", patch.GetName())
	require.Equal(t, "groups: []\n", gjson.GetBytes(patch.GetPatch(), "data.team-payments").String())

	impl, ok := patch.(clienttesting.PatchActionImpl)
	require.True(t, ok)
	require.Equal(t, cactuarv1.FieldManager, impl.PatchOptions.FieldManager)
	require.NotNil(t, impl.PatchOptions.Force)
	require.True(t, *impl.PatchOptions.Force)
}

func TestApplyPrometheusRule(t *testing.T) {
	c, _, mclient, _ := newClient(newDynamicClient())
	patches := capturePatches(mclient, "prometheusrules", &monv1.PrometheusRule{})

	pr := &monv1.PrometheusRule{
		TypeMeta:   metav1.TypeMeta{APIVersion: monv1.SchemeGroupVersion.String(), Kind: monv1.PrometheusRuleKind},
		ObjectMeta: metav1.ObjectMeta{Name: "checkout", Namespace: ns},
	}
	require.NoError(t, c.ApplyPrometheusRule(context.Background(), pr))

	require.Len(t, *patches, 1)
	require.Equal(t, types.ApplyPatchType, (*patches)[0].GetPatchType())
	require.Equal(t, "PrometheusRule", gjson.GetBytes((*patches)[0].GetPatch(), "kind").String())
}

func TestCRDReady(t *testing.T) {
	crd := cactuarv1.NewCustomResourceDefinition()

	for _, tc := range []struct {
		name       string
		conditions []apiextensionsv1.CustomResourceDefinitionCondition
		ready      bool
		err        bool
	}{
		{
			name:  "no conditions",
			ready: false,
		},
		{
			name: "established",
			conditions: []apiextensionsv1.CustomResourceDefinitionCondition{
				{Type: apiextensionsv1.NamesAccepted, Status: apiextensionsv1.ConditionTrue},
				{Type: apiextensionsv1.Established, Status: apiextensionsv1.ConditionTrue},
			},
			ready: true,
		},
		{
			name: "naming conflict",
			conditions: []apiextensionsv1.CustomResourceDefinitionCondition{
				{Type: apiextensionsv1.NamesAccepted, Status: apiextensionsv1.ConditionFalse, Reason: "AlreadyInUse"},
			},
			err: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			existing := crd.DeepCopy()
			existing.Status.Conditions = tc.conditions

			eclient := apiextensionsfake.NewSimpleClientset(existing)
			c := NewForClients(fake.NewSimpleClientset(), newDynamicClient(), monfake.NewSimpleClientset(), eclient)

			ready, err := c.CRDReady(context.Background(), crd)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.ready, ready)
		})
	}
}

func TestApplyCRD(t *testing.T) {
	c, _, _, eclient := newClient(newDynamicClient())
	patches := capturePatches(eclient, "customresourcedefinitions", &apiextensionsv1.CustomResourceDefinition{})

	require.NoError(t, c.ApplyCRD(context.Background(), cactuarv1.NewCustomResourceDefinition()))

	require.Len(t, *patches, 1)
	body := (*patches)[0].GetPatch()
	require.Equal(t, "servicealerts.cactuar.rs", gjson.GetBytes(body, "metadata.name").String())
	require.Equal(t, "ServiceAlert", gjson.GetBytes(body, "spec.names.kind").String())
}

func TestScheme(t *testing.T) {
	gvks, _, err := Scheme.ObjectKinds(&cactuarv1.ServiceAlert{})
	require.NoError(t, err)
	require.Equal(t, cactuarv1.SchemeGroupVersion.WithKind(cactuarv1.ServiceAlertKind), gvks[0])
}
