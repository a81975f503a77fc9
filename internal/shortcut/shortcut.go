/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package shortcut models the global show/hide shortcut and the in-window key map.
// Capturing keys is left to the platform layer; this package only describes and matches them.
package shortcut

import (
	"errors"
	"fmt"
	"strings"
)

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	Control Modifier = 1 << iota
	Option
	Shift
	Command
)

// NoKey marks a shortcut that is not set.
const NoKey uint16 = 0xFFFF

// KeyPeriod is the virtual key code of the "." key on an ANSI keyboard.
const KeyPeriod uint16 = 47

// ErrUnknownKey is returned by Parse for a key name without a known key code.
var ErrUnknownKey = errors.New("unknown key")

// Shortcut is a key code plus modifiers. Char is what the key prints, for display.
type Shortcut struct {
	KeyCode   uint16
	Modifiers Modifier
	Char      string
}

// Default is Option + Period.
func Default() Shortcut { return Shortcut{KeyCode: KeyPeriod, Modifiers: Option, Char: "."} }

// Unset returns a shortcut that never matches.
func Unset() Shortcut { return Shortcut{KeyCode: NoKey} }

// IsSet reports whether the shortcut has a key.
func (s Shortcut) IsSet() bool { return s.KeyCode != NoKey }

// Matches reports whether a key event triggers the shortcut.
func (s Shortcut) Matches(keyCode uint16, mods Modifier) bool {
	return s.IsSet() && s.KeyCode == keyCode && s.Modifiers == mods
}

// String renders the shortcut the way menus show it, e.g. "⌥.".
func (s Shortcut) String() string {
	if !s.IsSet() {
		return "Not Set"
	}
	return s.Modifiers.String() + strings.ToUpper(s.Char)
}

func (m Modifier) String() string {
	var b strings.Builder
	if m&Control != 0 {
		b.WriteString("⌃")
	}
	if m&Option != 0 {
		b.WriteString("⌥")
	}
	if m&Shift != 0 {
		b.WriteString("⇧")
	}
	if m&Command != 0 {
		b.WriteString("⌘")
	}
	return b.String()
}

// ANSI virtual key codes by the character they print.
var keyCodes = map[string]uint16{
	"a": 0, "s": 1, "d": 2, "f": 3, "h": 4, "g": 5, "z": 6, "x": 7, "c": 8, "v": 9,
	"b": 11, "q": 12, "w": 13, "e": 14, "r": 15, "y": 16, "t": 17,
	"1": 18, "2": 19, "3": 20, "4": 21, "6": 22, "5": 23, "=": 24, "9": 25, "7": 26,
	"-": 27, "8": 28, "0": 29, "]": 30, "o": 31, "u": 32, "[": 33, "i": 34, "p": 35,
	"l": 37, "j": 38, "'": 39, "k": 40, ";": 41, "\\": 42, ",": 43, "/": 44,
	"n": 45, "m": 46, ".": 47, "`": 50, "§": 10,
}

var keyAliases = map[string]string{
	"period": ".", "comma": ",", "slash": "/", "semicolon": ";", "quote": "'",
	"minus": "-", "equal": "=", "grave": "`", "backslash": "\\",
	"leftbracket": "[", "rightbracket": "]", "section": "§",
}

// Special keys without a printable character.
var namedKeys = map[string]uint16{"return": 36, "tab": 48, "space": 49, "escape": 53}

// Parse builds a shortcut from config values: a key name ("." or "period", "k", "space") and
// modifier names. An empty key yields Unset.
func Parse(key string, modifiers []string) (Shortcut, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return Unset(), nil
	}
	var mods Modifier
	for _, name := range modifiers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "control", "ctrl":
			mods |= Control
		case "option", "alt":
			mods |= Option
		case "shift":
			mods |= Shift
		case "command", "cmd":
			mods |= Command
		default:
			return Unset(), fmt.Errorf("unknown modifier %q", name)
		}
	}
	if alias, ok := keyAliases[k]; ok {
		k = alias
	}
	if code, ok := keyCodes[k]; ok {
		return Shortcut{KeyCode: code, Modifiers: mods, Char: k}, nil
	}
	if code, ok := namedKeys[k]; ok {
		return Shortcut{KeyCode: code, Modifiers: mods, Char: k}, nil
	}
	return Unset(), fmt.Errorf("%w: %q", ErrUnknownKey, key)
}
