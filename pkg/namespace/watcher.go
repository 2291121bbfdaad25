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

package namespace

import (
	"context"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/tools/cache"
	"k8s.io/klog/v2"
)

// Watcher watches namespace objects and maintains an up-to-date set of
// namespace names returned by the ListerWatcher used.
type Watcher interface {
	Run(ctx context.Context)
	HasSynced() bool
	Namespaces() sets.Set[string]
	Has(ns string) bool
}

// ChangeFunc is called with the name of a namespace entering or leaving the
// watched set.
type ChangeFunc func(ns string)

type watcher struct {
	namespaces sets.Set[string]
	informer   cache.SharedIndexInformer
	onChange   ChangeFunc

	sync.RWMutex
}

// NewWatcher returns a new namespace watcher using the given ListerWatcher.
// onChange may be nil.
func NewWatcher(resync time.Duration, lw cache.ListerWatcher, onChange ChangeFunc) (Watcher, error) {
	informer := cache.NewSharedIndexInformer(
		lw,
		&corev1.Namespace{},
		resync,
		cache.Indexers{},
	)

	w := &watcher{
		informer:   informer,
		namespaces: sets.New[string](),
		onChange:   onChange,
	}

	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    w.add,
		DeleteFunc: w.remove,
	})
	if err != nil {
		return nil, err
	}

	return w, nil
}

// Run starts the informer and blocks until the context is canceled.
func (w *watcher) Run(ctx context.Context) {
	w.informer.Run(ctx.Done())
}

// HasSynced returns true if the watcher's informer has synced its caches.
func (w *watcher) HasSynced() bool {
	return w.informer.HasSynced()
}

// Namespaces returns a copy of the set of namespaces at the time the
// method is called.  The set will not be kept up-to-date.
func (w *watcher) Namespaces() sets.Set[string] {
	w.RLock()
	defer w.RUnlock()

	return w.namespaces.Clone()
}

// Has returns true if the given namespace is in the set of namespaces.
func (w *watcher) Has(ns string) bool {
	w.RLock()
	defer w.RUnlock()

	return w.namespaces.Has(ns)
}

func (w *watcher) add(obj interface{}) {
	ns, ok := obj.(*corev1.Namespace)
	if !ok {
		klog.Errorf("namespace watcher got non-namespace object with type %T", obj)
		return
	}

	klog.V(4).InfoS("Found selected namespace", "namespace", ns.GetName())

	w.Lock()
	w.namespaces.Insert(ns.GetName())
	w.Unlock()

	if w.onChange != nil {
		w.onChange(ns.GetName())
	}
}

func (w *watcher) remove(obj interface{}) {
	if d, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = d.Obj
	}

	ns, ok := obj.(*corev1.Namespace)
	if !ok {
		klog.Errorf("namespace watcher got non-namespace object with type %T", obj)
		return
	}

	klog.V(4).InfoS("Removing namespace", "namespace", ns.GetName())

	w.Lock()
	w.namespaces.Delete(ns.GetName())
	w.Unlock()

	if w.onChange != nil {
		w.onChange(ns.GetName())
	}
}

// All is a Watcher matching every namespace. It is used when no namespace
// selector is configured.
type All struct{}

func (All) Run(ctx context.Context)      { <-ctx.Done() }
func (All) HasSynced() bool              { return true }
func (All) Namespaces() sets.Set[string] { return sets.New[string]() }
func (All) Has(string) bool              { return true }
