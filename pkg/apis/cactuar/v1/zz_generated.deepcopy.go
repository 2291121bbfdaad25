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
	"k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyInto copies the receiver into out. in must be non-nil.
func (in *AlertConfig) DeepCopyInto(out *AlertConfig) {
	*out = *in
	if in.WithLabels != nil {
		in, out := &in.WithLabels, &out.WithLabels
		*out = make(map[string]string, len(*in))
		for key, val := range *in {
			(*out)[key] = val
		}
	}
}

// DeepCopy creates a new AlertConfig.
func (in *AlertConfig) DeepCopy() *AlertConfig {
	if in == nil {
		return nil
	}
	out := new(AlertConfig)
	in.DeepCopyInto(out)
	return out
}

func deepCopyConfigs(in []AlertConfig) []AlertConfig {
	if in == nil {
		return nil
	}
	out := make([]AlertConfig, len(in))
	for i := range in {
		in[i].DeepCopyInto(&out[i])
	}
	return out
}

// DeepCopyInto copies the receiver into out. in must be non-nil.
func (in *Alerts) DeepCopyInto(out *Alerts) {
	*out = *in
	if in.REST != nil {
		in, out := &in.REST, &out.REST
		*out = make(map[NetworkAlert][]AlertConfig, len(*in))
		for key, val := range *in {
			(*out)[key] = deepCopyConfigs(val)
		}
	}
	if in.GRPC != nil {
		in, out := &in.GRPC, &out.GRPC
		*out = make(map[NetworkAlert][]AlertConfig, len(*in))
		for key, val := range *in {
			(*out)[key] = deepCopyConfigs(val)
		}
	}
	if in.Replica != nil {
		in, out := &in.Replica, &out.Replica
		*out = make(map[ReplicaAlert][]AlertConfig, len(*in))
		for key, val := range *in {
			(*out)[key] = deepCopyConfigs(val)
		}
	}
}

// DeepCopy creates a new Alerts.
func (in *Alerts) DeepCopy() *Alerts {
	if in == nil {
		return nil
	}
	out := new(Alerts)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out. in must be non-nil.
func (in *CommonLabels) DeepCopyInto(out *CommonLabels) {
	*out = *in
	if in.Extra != nil {
		in, out := &in.Extra, &out.Extra
		*out = make(map[string]string, len(*in))
		for key, val := range *in {
			(*out)[key] = val
		}
	}
}

// DeepCopy creates a new CommonLabels.
func (in *CommonLabels) DeepCopy() *CommonLabels {
	if in == nil {
		return nil
	}
	out := new(CommonLabels)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out. in must be non-nil.
func (in *ServiceAlertSpec) DeepCopyInto(out *ServiceAlertSpec) {
	*out = *in
	in.CommonLabels.DeepCopyInto(&out.CommonLabels)
	in.Alerts.DeepCopyInto(&out.Alerts)
}

// DeepCopy creates a new ServiceAlertSpec.
func (in *ServiceAlertSpec) DeepCopy() *ServiceAlertSpec {
	if in == nil {
		return nil
	}
	out := new(ServiceAlertSpec)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out. in must be non-nil.
func (in *ServiceAlertStatus) DeepCopyInto(out *ServiceAlertStatus) {
	*out = *in
	if in.LastReconciledAt != nil {
		out.LastReconciledAt = in.LastReconciledAt.DeepCopy()
	}
	if in.ReconciliationExpiresAt != nil {
		out.ReconciliationExpiresAt = in.ReconciliationExpiresAt.DeepCopy()
	}
}

// DeepCopy creates a new ServiceAlertStatus.
func (in *ServiceAlertStatus) DeepCopy() *ServiceAlertStatus {
	if in == nil {
		return nil
	}
	out := new(ServiceAlertStatus)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out. in must be non-nil.
func (in *ServiceAlert) DeepCopyInto(out *ServiceAlert) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy creates a new ServiceAlert.
func (in *ServiceAlert) DeepCopy() *ServiceAlert {
	if in == nil {
		return nil
	}
	out := new(ServiceAlert)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ServiceAlert) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out. in must be non-nil.
func (in *ServiceAlertList) DeepCopyInto(out *ServiceAlertList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		in, out := &in.Items, &out.Items
		*out = make([]ServiceAlert, len(*in))
		for i := range *in {
			(*in)[i].DeepCopyInto(&(*out)[i])
		}
	}
}

// DeepCopy creates a new ServiceAlertList.
func (in *ServiceAlertList) DeepCopy() *ServiceAlertList {
	if in == nil {
		return nil
	}
	out := new(ServiceAlertList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ServiceAlertList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
