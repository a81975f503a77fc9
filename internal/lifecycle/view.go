/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package lifecycle

import "fmt"

// View is one live embedded page. Implementations are provided by an Engine.
type View interface {
	// ID identifies this instance; a re-created view for the same slot gets a new ID.
	ID() string
	Navigate(url string) error
	Reload() error
	// Eval runs a script in the page. Engines that cannot script return an error.
	Eval(script string) error
	// Close releases the instance and everything it holds. Calling it twice is harmless.
	Close() error
}

// ViewSpec describes a view to create.
type ViewSpec struct {
	Slot int
	ID   string
	URL  string
	// Notify receives navigation and process events for this instance. It may be called from any goroutine.
	Notify func(Event)
}

// Engine creates live views.
type Engine interface {
	Create(spec ViewSpec) (View, error)
}

// Surface is where views are shown. Exactly one attached view is visible at a time.
type Surface interface {
	Attach(slot int, v View)
	Detach(slot int, v View)
	SetVisible(slot int, visible bool)
}

// EventKind tells what happened to a view.
type EventKind int

const (
	NavigationFinished EventKind = iota + 1
	NavigationFailed
	ContentProcessTerminated
)

func (k EventKind) String() string {
	switch k {
	case NavigationFinished:
		return "navigation_finished"
	case NavigationFailed:
		return "navigation_failed"
	case ContentProcessTerminated:
		return "content_process_terminated"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is reported by an engine for a specific view instance.
type Event struct {
	Kind   EventKind
	Slot   int
	ViewID string
	Err    error
}
