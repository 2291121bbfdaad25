// Copyright 2019 The Cactuar Authors
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

package strings

import (
	"strings"
	"unicode"
)

// ToPascalCase converts s to PascalCase. Any rune that is neither a letter nor
// a digit separates words, and a letter following a digit starts a new word.
func ToPascalCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	upperNext := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if upperNext {
				r = unicode.ToUpper(r)
			}
			b.WriteRune(r)
			upperNext = false
		case unicode.IsDigit(r):
			b.WriteRune(r)
			upperNext = true
		default:
			upperNext = true
		}
	}

	return b.String()
}
