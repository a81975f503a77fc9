/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package shortcut

// Action is what an in-window key press asks for.
type Action int

const (
	ActionNone Action = iota
	ActionCycle
	ActionRefresh
	ActionZoomIn
	ActionZoomOut
	ActionActualSize
	ActionSettings
	ActionSelectSlot
)

func (a Action) String() string {
	switch a {
	case ActionCycle:
		return "cycle"
	case ActionRefresh:
		return "refresh"
	case ActionZoomIn:
		return "zoom_in"
	case ActionZoomOut:
		return "zoom_out"
	case ActionActualSize:
		return "actual_size"
	case ActionSettings:
		return "settings"
	case ActionSelectSlot:
		return "select_slot"
	default:
		return "none"
	}
}

// KeyResult is the outcome of Translate. Slot is set for ActionSelectSlot.
type KeyResult struct {
	Action Action
	Slot   int
}

// Translate maps a key press in the window to an action. chars is the text the key produced without
// modifiers. Nothing is handled while a modal sheet is open or without Command held.
func Translate(chars string, mods Modifier, sheetOpen bool) KeyResult {
	if sheetOpen || mods&Command == 0 {
		return KeyResult{}
	}
	// ⌘⌥1 .. ⌘⌥9, ⌘⌥0 select slots 0..9
	if mods == Command|Option && len(chars) == 1 && chars[0] >= '0' && chars[0] <= '9' {
		slot := int(chars[0] - '1')
		if chars[0] == '0' {
			slot = 9
		}
		return KeyResult{Action: ActionSelectSlot, Slot: slot}
	}
	if mods != Command && !(mods == Command|Shift && (chars == "+" || chars == "=")) {
		return KeyResult{}
	}
	switch chars {
	case "1":
		return KeyResult{Action: ActionCycle}
	case "r", "R":
		return KeyResult{Action: ActionRefresh}
	case "=", "+", "§":
		return KeyResult{Action: ActionZoomIn}
	case "-":
		return KeyResult{Action: ActionZoomOut}
	case "0":
		return KeyResult{Action: ActionActualSize}
	case ",":
		return KeyResult{Action: ActionSettings}
	}
	return KeyResult{}
}
