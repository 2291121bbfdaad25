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

// Package v1 contains the cactuar.rs/v1 API types.
package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Identity of the ServiceAlert API and of the controller writing to it. All
// code refers to these rather than to literals.
const (
	GroupName = "cactuar.rs"
	Version   = "v1"

	ServiceAlertKind     = "ServiceAlert"
	ServiceAlertListKind = "ServiceAlertList"
	ServiceAlertResource = "servicealerts"
	ServiceAlertSingular = "servicealert"
	ServiceAlertShort    = "alert"

	// Finalizer blocks removal of a ServiceAlert until cleanup ran.
	Finalizer = "servicealert.cactuar.rs"

	// FieldManager is the server-side apply identity used for every write.
	FieldManager = "cactuar"

	// ReportingController identifies the controller in published events.
	ReportingController = "cactuar.rs/servicealert-controller"
)

var (
	// SchemeGroupVersion is group version used to register these objects.
	SchemeGroupVersion = schema.GroupVersion{Group: GroupName, Version: Version}

	// SchemeGroupVersionResource addresses ServiceAlerts through the dynamic client.
	SchemeGroupVersionResource = SchemeGroupVersion.WithResource(ServiceAlertResource)

	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)
	AddToScheme   = SchemeBuilder.AddToScheme
)

// Resource takes an unqualified resource and returns a Group qualified GroupResource.
func Resource(resource string) schema.GroupResource {
	return SchemeGroupVersion.WithResource(resource).GroupResource()
}

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(SchemeGroupVersion,
		&ServiceAlert{},
		&ServiceAlertList{},
	)
	metav1.AddToGroupVersion(scheme, SchemeGroupVersion)
	return nil
}
