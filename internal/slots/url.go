/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package slots

import (
	"fmt"
	"net/url"
	"strings"
)

// BlankURL is loaded into a view whose slot has no usable URL.
const BlankURL = "about:blank"

// NormalizeURL trims raw and checks it is an absolute http(s) URL with a host.
// An empty string is valid and means "not configured".
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, s, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidURL, s)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrInvalidURL, s)
	}
	return s, nil
}

// LoadURL returns the URL a view for this slot should navigate to.
func (s Slot) LoadURL() string {
	if _, err := NormalizeURL(s.URL); err != nil || s.URL == "" {
		return BlankURL
	}
	return s.URL
}
