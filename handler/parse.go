// File: handler/parse.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The engine hands over the raw header block one line at a time without
// classifying it, exactly as read off an HTTP/1.x socket. These helpers
// tell a status line, a header field and the terminating blank line apart.

package handler

import (
	"bytes"
	"strings"
)

// parseStatusLine parses "HTTP/1.1 200 OK" (trailing reason optional, as
// in HTTP/2 style lines).
func parseStatusLine(line []byte) (proto string, status int, ok bool) {
	s := trimLineEnding(line)
	rest, found := strings.CutPrefix(s, "HTTP/")
	if !found {
		return "", 0, false
	}

	version, rest, found := strings.Cut(rest, " ")
	if !found || version == "" {
		return "", 0, false
	}

	codeStr, _, _ := strings.Cut(rest, " ")
	if len(codeStr) != 3 {
		return "", 0, false
	}
	code := 0
	for _, c := range codeStr {
		if c < '0' || c > '9' {
			return "", 0, false
		}
		code = code*10 + int(c-'0')
	}

	return "HTTP/" + version, code, true
}

// parseHeaderLine parses a "Name: value" field line.
func parseHeaderLine(line []byte) (name, value string, ok bool) {
	s := trimLineEnding(line)
	n, v, found := strings.Cut(s, ":")
	if !found || n == "" {
		return "", "", false
	}
	// Field names cannot contain whitespace; a space before the colon
	// means this is some other kind of line.
	if strings.ContainsAny(n, " \t") {
		return "", "", false
	}
	return n, strings.Trim(v, " \t"), true
}

// isBlankLine reports whether line terminates a header block.
func isBlankLine(line []byte) bool {
	return len(bytes.TrimRight(line, "\r\n")) == 0
}

func trimLineEnding(line []byte) string {
	return string(bytes.TrimRight(line, "\r\n"))
}
