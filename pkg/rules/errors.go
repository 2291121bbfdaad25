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

package rules

import (
	"fmt"

	"github.com/pkg/errors"
)

type Reason string

const (
	// NoRulesDefined means no category holds a single alert configuration.
	NoRulesDefined Reason = "NoRulesDefined"
	// UnsupportedAlertKind means a kind has no expression for its category.
	UnsupportedAlertKind Reason = "UnsupportedAlertKind"
	// InvalidExpression means the rendered expression does not parse.
	InvalidExpression Reason = "InvalidExpression"
)

// TranslationError is returned by Compile. No document is produced when it
// is returned.
type TranslationError struct {
	Reason   Reason
	Category string
	Kind     string
	Err      error
}

var _ error = (*TranslationError)(nil)

func (te *TranslationError) Error() string {
	msg := string(te.Reason)
	if te.Category != "" {
		msg += fmt.Sprintf(" (%s", te.Category)
		if te.Kind != "" {
			msg += "/" + te.Kind
		}
		msg += ")"
	}
	if te.Err != nil {
		msg += ": " + te.Err.Error()
	}
	return msg
}

func (te *TranslationError) Unwrap() error {
	return te.Err
}

func newNoRulesDefinedError() *TranslationError {
	return &TranslationError{Reason: NoRulesDefined}
}

func newUnsupportedAlertKindError(category, kind string) *TranslationError {
	return &TranslationError{Reason: UnsupportedAlertKind, Category: category, Kind: kind}
}

func newInvalidExpressionError(category, kind string, err error) *TranslationError {
	return &TranslationError{Reason: InvalidExpression, Category: category, Kind: kind, Err: err}
}

// ReasonOf returns the translation failure reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Reason, true
	}
	return "", false
}

// IsNoRulesDefined returns true if err was caused by an empty specification.
func IsNoRulesDefined(err error) bool {
	r, ok := ReasonOf(err)
	return ok && r == NoRulesDefined
}

// IsUnsupportedAlertKind returns true if err was caused by a kind without an
// expression.
func IsUnsupportedAlertKind(err error) bool {
	r, ok := ReasonOf(err)
	return ok && r == UnsupportedAlertKind
}
