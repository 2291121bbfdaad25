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

package namespace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/tools/cache"
)

func newNamespace(name string) *corev1.Namespace {
	return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
}

func TestWatcher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kclient := fake.NewSimpleClientset(newNamespace("shop"), newNamespace("billing"))
	lw := &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			return kclient.CoreV1().Namespaces().List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			return kclient.CoreV1().Namespaces().Watch(ctx, options)
		},
	}

	var (
		mu      sync.Mutex
		changed []string
	)
	w, err := NewWatcher(time.Minute, lw, func(ns string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, ns)
	})
	require.NoError(t, err)

	go w.Run(ctx)
	require.Eventually(t, w.HasSynced, 5*time.Second, 10*time.Millisecond)

	require.True(t, w.Has("shop"))
	require.True(t, w.Has("billing"))
	require.False(t, w.Has("default"))
	require.ElementsMatch(t, []string{"shop", "billing"}, w.Namespaces().UnsortedList())

	require.NoError(t, kclient.CoreV1().Namespaces().Delete(ctx, "billing", metav1.DeleteOptions{}))
	require.Eventually(t, func() bool { return !w.Has("billing") }, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, changed, "shop")
	require.Contains(t, changed, "billing")
}

func TestNamespacesIsACopy(t *testing.T) {
	w := &watcher{namespaces: sets.New("shop")}

	s := w.Namespaces()
	s.Insert("billing")

	require.False(t, w.Has("billing"))
}

func TestAll(t *testing.T) {
	var w Watcher = All{}

	require.True(t, w.HasSynced())
	require.True(t, w.Has("anything"))
}
