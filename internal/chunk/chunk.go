// Package chunk splits rendered digest text into transport-size-bounded
// parts. Concatenating the parts in order reproduces the input exactly,
// unless a single line exceeded the limit and forced a hard cut.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most max bytes. It prefers
// splitting at section boundaries (after a blank line), then at line
// boundaries, and only falls back to a hard mid-line cut when one line
// alone exceeds max. The returned flag reports whether a hard cut
// happened. No chunk is empty.
func Split(text string, max int) ([]string, bool) {
	if text == "" {
		return nil, false
	}
	if max < 1 || len(text) <= max {
		return []string{text}, false
	}

	hardCut := false
	var chunks []string

	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
	}

	for _, section := range splitAfter(text, "\n\n") {
		if buf.Len()+len(section) <= max {
			buf.WriteString(section)
			continue
		}
		flush()
		if len(section) <= max {
			buf.WriteString(section)
			continue
		}

		// Section alone is too big; fall back to line boundaries.
		for _, line := range splitAfter(section, "\n") {
			if buf.Len()+len(line) <= max {
				buf.WriteString(line)
				continue
			}
			flush()
			if len(line) <= max {
				buf.WriteString(line)
				continue
			}

			// One line exceeds the limit alone: hard cut,
			// backed up to a rune boundary.
			hardCut = true
			for len(line) > max {
				cut := max
				for cut > 0 && !utf8.RuneStart(line[cut]) {
					cut--
				}
				if cut == 0 {
					cut = max
				}
				chunks = append(chunks, line[:cut])
				line = line[cut:]
			}
			buf.WriteString(line)
		}
	}
	flush()

	return chunks, hardCut
}

// splitAfter splits s on sep, keeping sep attached to the end of each
// piece so that the pieces concatenate back to s. Empty pieces are
// dropped (they can only arise from a trailing separator).
func splitAfter(s, sep string) []string {
	parts := strings.SplitAfter(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
