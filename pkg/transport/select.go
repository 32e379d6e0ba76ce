// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"path/filepath"
	"regexp"
	"sort"
)

// SelectDevice picks the serial device to open.
//
// Candidates match when their short name or full path matches pattern in
// full. Without a current device the lexicographically first match wins;
// otherwise the first match sorting strictly after current, wrapping to the
// first match. With no matches the pattern itself is returned so a literal
// device name still gets a chance to open.
func SelectDevice(pattern, current string, available []string) string {
	match := matcher(pattern)

	var matches []string
	for _, path := range available {
		if match(filepath.Base(path)) || match(path) {
			matches = append(matches, path)
		}
	}
	if len(matches) == 0 {
		return pattern
	}
	sort.Strings(matches)

	if current == "" {
		return matches[0]
	}
	for _, path := range matches {
		if path > current {
			return path
		}
	}
	return matches[0]
}

// matcher compiles pattern as an anchored regular expression, falling back
// to plain comparison when it does not compile.
func matcher(pattern string) func(string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return func(s string) bool { return s == pattern }
	}
	return re.MatchString
}
