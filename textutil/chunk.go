// Package textutil holds the plain-text helpers used on the broadcast path.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkLimit is the transport-safe message size used when no limit is
// configured.
const DefaultChunkLimit = 512

// Chunk splits text into pieces of at most limit bytes. Boundaries prefer the
// last newline in the current window, then the last space, then a hard cut.
// Concatenating the result reproduces the input exactly. A limit below one is
// treated as a hard cut at one byte so the loop always makes progress.
func Chunk(text string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	if len(text) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, len(text)/limit+1)
	rest := text
	for len(rest) > limit {
		window := rest[:limit]
		idx := strings.LastIndexByte(window, '\n') + 1
		if idx == 0 {
			idx = strings.LastIndexByte(window, ' ') + 1
		}
		if idx == 0 {
			// Hard cut: back up to a rune boundary so a multi-byte
			// character is never split across chunks. If the limit is
			// smaller than the rune there is no valid boundary; cut
			// anyway to keep making progress.
			idx = limit
			for idx > 0 && !utf8.RuneStart(rest[idx]) {
				idx--
			}
			if idx == 0 {
				idx = limit
			}
		}
		chunks = append(chunks, rest[:idx])
		rest = rest[idx:]
	}
	return append(chunks, rest)
}
