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
	"time"
)

// Action tells the controller loop what to do with a key once a
// reconciliation returns.
type Action struct {
	// RequeueAfter schedules the next reconciliation. Zero means the key is
	// only processed again on the next change notification.
	RequeueAfter time.Duration
}

// Requeue returns an Action scheduling another reconciliation after d.
func Requeue(d time.Duration) Action {
	return Action{RequeueAfter: d}
}

// AwaitChange returns an Action arming no timer.
func AwaitChange() Action {
	return Action{}
}

func (a Action) IsAwaitChange() bool {
	return a.RequeueAfter <= 0
}

func (a Action) String() string {
	if a.IsAwaitChange() {
		return "await change"
	}
	return fmt.Sprintf("requeue after %s", a.RequeueAfter)
}
