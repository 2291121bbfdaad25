// Copyright 2024 The Cactuar Authors
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

// Package alertvalidate implements the validating admission webhook for
// ServiceAlert objects.
package alertvalidate

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/common/model"
	admissionv1 "k8s.io/api/admission/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/manifests"
	"github.com/cactuar-rs/cactuar/pkg/rules"
)

// Path is the URL path the webhook is served on.
const Path = "/validate-webhook/servicealerts"

// Validate returns an error if the controller could not generate an
// artifact for sa.
func Validate(sa *cactuarv1.ServiceAlert) error {
	if _, err := rules.Compile(&sa.Spec); err != nil {
		return err
	}

	if err := manifests.ValidateOwnerKey(sa.Spec.CommonLabels.Owner); err != nil {
		return err
	}

	if err := validateDurations(&sa.Spec.Alerts); err != nil {
		return err
	}

	return manifests.ValidateArtifactLabels(sa)
}

// validateDurations checks that every "for" is a Prometheus duration.
// Replica rules don't embed it in their expression, so translation alone
// would let an invalid value through to the rule file.
func validateDurations(alerts *cactuarv1.Alerts) error {
	check := func(category, kind string, configs []cactuarv1.AlertConfig) error {
		for i, cfg := range configs {
			if _, err := model.ParseDuration(cfg.For); err != nil {
				return errors.Wrapf(err, "%s %s[%d]: invalid for", category, kind, i)
			}
		}
		return nil
	}

	for kind, configs := range alerts.Replica {
		if err := check(rules.ReplicaGroup, string(kind), configs); err != nil {
			return err
		}
	}
	for kind, configs := range alerts.REST {
		if err := check(rules.HTTPGroup, string(kind), configs); err != nil {
			return err
		}
	}
	for kind, configs := range alerts.GRPC {
		if err := check(rules.GRPCGroup, string(kind), configs); err != nil {
			return err
		}
	}

	return nil
}

type serviceAlertValidator struct {
	d admission.Decoder
}

func newServiceAlertValidator() *serviceAlertValidator {
	return &serviceAlertValidator{d: admission.NewDecoder(runtime.NewScheme())}
}

// MustNewServiceAlertValidatorHandler returns the webhook as a plain
// http.Handler.
func MustNewServiceAlertValidatorHandler() http.Handler {
	hook := &admission.Webhook{
		Handler: newServiceAlertValidator(),
	}

	handler, err := admission.StandaloneWebhook(hook, admission.StandaloneOptions{})
	if err != nil {
		panic(err)
	}
	return handler
}

func (v *serviceAlertValidator) Handle(ctx context.Context, req admission.Request) admission.Response {
	if req.Operation == admissionv1.Delete {
		return admission.Allowed("")
	}

	if req.Kind.Group != cactuarv1.GroupName || req.Kind.Kind != cactuarv1.ServiceAlertKind {
		return admission.Allowed("")
	}

	var sa cactuarv1.ServiceAlert
	if err := v.d.Decode(req, &sa); err != nil {
		return admission.Errored(http.StatusBadRequest, err)
	}

	// Deletion already started, the finalizer must be removable.
	if sa.IsBeingDeleted() {
		return admission.Allowed("")
	}

	if err := Validate(&sa); err != nil {
		return admission.Denied(errors.Wrap(err, "invalid ServiceAlert").Error())
	}

	return admission.Allowed("")
}
