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
	"encoding/json"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// CRDName is the name of the ServiceAlert CustomResourceDefinition.
const CRDName = ServiceAlertResource + "." + GroupName

// NewCustomResourceDefinition returns the ServiceAlert CRD.
func NewCustomResourceDefinition() *apiextensionsv1.CustomResourceDefinition {
	return &apiextensionsv1.CustomResourceDefinition{
		TypeMeta: metav1.TypeMeta{
			APIVersion: apiextensionsv1.SchemeGroupVersion.String(),
			Kind:       "CustomResourceDefinition",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: CRDName,
		},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: GroupName,
			Scope: apiextensionsv1.NamespaceScoped,
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:     ServiceAlertResource,
				Singular:   ServiceAlertSingular,
				Kind:       ServiceAlertKind,
				ListKind:   ServiceAlertListKind,
				ShortNames: []string{ServiceAlertShort},
			},
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{
					Name:    Version,
					Served:  true,
					Storage: true,
					Schema: &apiextensionsv1.CustomResourceValidation{
						OpenAPIV3Schema: serviceAlertSchema(),
					},
					Subresources: &apiextensionsv1.CustomResourceSubresources{
						Status: &apiextensionsv1.CustomResourceSubresourceStatus{},
					},
					AdditionalPrinterColumns: []apiextensionsv1.CustomResourceColumnDefinition{
						{Name: "Deployment", Type: "string", JSONPath: ".spec.deploymentName"},
						{Name: "Owner", Type: "string", JSONPath: ".spec.commonLabels.owner"},
						{Name: "Reconciled", Type: "date", JSONPath: ".status.lastReconciledAt"},
					},
				},
			},
		},
	}
}

func serviceAlertSchema() *apiextensionsv1.JSONSchemaProps {
	stringMap := apiextensionsv1.JSONSchemaProps{
		Type: "object",
		AdditionalProperties: &apiextensionsv1.JSONSchemaPropsOrBool{
			Allows: true,
			Schema: &apiextensionsv1.JSONSchemaProps{Type: "string"},
		},
	}

	alertConfigs := apiextensionsv1.JSONSchemaProps{
		Type: "array",
		Items: &apiextensionsv1.JSONSchemaPropsOrArray{
			Schema: &apiextensionsv1.JSONSchemaProps{
				Type:     "object",
				Required: []string{"operation", "value", "for"},
				Properties: map[string]apiextensionsv1.JSONSchemaProps{
					"operation":  {Type: "string", Enum: enum(Operations)},
					"value":      {Type: "number"},
					"for":        {Type: "string", MinLength: ptr.To[int64](1)},
					"withLabels": stringMap,
				},
			},
		},
	}

	network := apiextensionsv1.JSONSchemaProps{
		Type:       "object",
		Properties: map[string]apiextensionsv1.JSONSchemaProps{},
	}
	for _, kind := range NetworkAlerts {
		network.Properties[string(kind)] = alertConfigs
	}

	replica := apiextensionsv1.JSONSchemaProps{
		Type:       "object",
		Properties: map[string]apiextensionsv1.JSONSchemaProps{},
	}
	for _, kind := range ReplicaAlerts {
		replica.Properties[string(kind)] = alertConfigs
	}

	return &apiextensionsv1.JSONSchemaProps{
		Type:     "object",
		Required: []string{"spec"},
		Properties: map[string]apiextensionsv1.JSONSchemaProps{
			"spec": {
				Type:     "object",
				Required: []string{"commonLabels", "deploymentName", "alerts"},
				Properties: map[string]apiextensionsv1.JSONSchemaProps{
					"commonLabels": {
						Type:     "object",
						Required: []string{"owner", "origin"},
						Properties: map[string]apiextensionsv1.JSONSchemaProps{
							"owner":  {Type: "string", MinLength: ptr.To[int64](1)},
							"origin": {Type: "string"},
							"extra":  stringMap,
						},
					},
					"deploymentName": {Type: "string", MinLength: ptr.To[int64](1)},
					"alerts": {
						Type: "object",
						Properties: map[string]apiextensionsv1.JSONSchemaProps{
							"REST":    network,
							"gRPC":    network,
							"replica": replica,
						},
					},
				},
			},
			"status": {
				Type: "object",
				Properties: map[string]apiextensionsv1.JSONSchemaProps{
					"lastReconciledAt":        {Type: "string", Format: "date-time"},
					"reconciliationExpiresAt": {Type: "string", Format: "date-time"},
				},
			},
		},
	}
}

func enum[T ~string](values []T) []apiextensionsv1.JSON {
	out := make([]apiextensionsv1.JSON, 0, len(values))
	for _, v := range values {
		raw, _ := json.Marshal(string(v))
		out = append(out, apiextensionsv1.JSON{Raw: raw})
	}
	return out
}
