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
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies reconciliation failures.
type ErrorKind string

const (
	// ValidationError is raised when the ServiceAlert cannot be translated
	// into an artifact.
	ValidationError ErrorKind = "validation"
	// MissingFieldError is raised when the live object lacks a field the
	// artifact needs, such as its namespace or UID.
	MissingFieldError ErrorKind = "missing_field"
	// TransportError is raised when a request to the API server fails.
	TransportError ErrorKind = "transport"
	// FinalizerError is raised when the finalizer cannot be attached or
	// cleared. Objects stuck in deletion usually show this kind.
	FinalizerError ErrorKind = "finalizer"
)

// ErrorKinds lists every ErrorKind.
var ErrorKinds = []ErrorKind{ValidationError, MissingFieldError, TransportError, FinalizerError}

// ReconcileError is returned by the Reconciler for every failure.
type ReconcileError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

var _ error = (*ReconcileError)(nil)

func (re *ReconcileError) Error() string {
	if re.Err == nil {
		return fmt.Sprintf("%s: %s", re.Kind, re.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", re.Kind, re.Reason, re.Err)
}

func (re *ReconcileError) Unwrap() error {
	return re.Err
}

func newReconcileError(kind ErrorKind, err error, reason string) *ReconcileError {
	return &ReconcileError{Kind: kind, Reason: reason, Err: err}
}

func NewValidationError(err error, reason string) *ReconcileError {
	return newReconcileError(ValidationError, err, reason)
}

func NewMissingFieldError(field string) *ReconcileError {
	return newReconcileError(MissingFieldError, nil, fmt.Sprintf("missing field %s", field))
}

func NewTransportError(err error, reason string) *ReconcileError {
	return newReconcileError(TransportError, err, reason)
}

func NewFinalizerError(err error, reason string) *ReconcileError {
	return newReconcileError(FinalizerError, err, reason)
}

// KindOf returns the kind of err. Errors not raised by the Reconciler are
// reported as transport errors.
func KindOf(err error) ErrorKind {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Kind
	}
	return TransportError
}
