// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "strings"

// TokenHandler transforms the text found between an open and close
// token into its replacement.
type TokenHandler func(content string) string

// GenericTokenParser scans text for balanced open/close tokens with
// backslash-escape support (e.g. "\${" keeps the literal "${"). It is
// shared by ${...} substitution and #{...} parameter parsing; it does
// not interpret the enclosed expression itself.
type GenericTokenParser struct {
	Open, Close string
	Handler     TokenHandler
}

// Parse returns text with every open/close-delimited span replaced by
// the handler's output for its enclosed content.
func (p *GenericTokenParser) Parse(text string) string {
	if text == "" {
		return ""
	}
	var out strings.Builder
	src := []byte(text)
	openLen := len(p.Open)
	closeLen := len(p.Close)

	start := indexFrom(src, p.Open, 0)
	if start == -1 {
		return text
	}

	offset := 0
	for start > -1 {
		if start > 0 && src[start-1] == '\\' {
			// Escaped open token: emit the literal token and continue
			// scanning past it.
			out.Write(src[offset : start-1])
			out.WriteString(p.Open)
			offset = start + openLen
		} else {
			end := indexFrom(src, p.Close, start+openLen)
			for end > -1 && src[end-1] == '\\' {
				// Escaped close token inside the expression body: keep
				// scanning for the real terminator.
				next := indexFrom(src, p.Close, end+closeLen)
				if next == -1 {
					break
				}
				end = next
			}
			if end == -1 {
				out.Write(src[offset:])
				offset = len(src)
				break
			}
			out.Write(src[offset:start])
			content := string(src[start+openLen : end])
			out.WriteString(p.Handler(content))
			offset = end + closeLen
		}
		start = indexFrom(src, p.Open, offset)
	}
	if offset < len(src) {
		out.Write(src[offset:])
	}
	return out.String()
}

func indexFrom(src []byte, sub string, from int) int {
	if from >= len(src) {
		return -1
	}
	idx := strings.Index(string(src[from:]), sub)
	if idx == -1 {
		return -1
	}
	return from + idx
}
