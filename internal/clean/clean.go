// Package clean strips quoted replies, signatures, and boilerplate
// noise from raw message bodies before they are summarized.
package clean

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended when a body is cut at the character budget.
const TruncationMarker = "[TRUNCATED]"

// quoteMarkers match lines that belong to a quoted reply and are
// dropped wholesale.
var quoteMarkers = []*regexp.Regexp{
	regexp.MustCompile(`^>+`),
	regexp.MustCompile(`(?i)^On .+ wrote:$`),
	regexp.MustCompile(`(?i)^От: .+$`),
	regexp.MustCompile(`(?i)^Sent: .+$`),
	regexp.MustCompile(`(?i)^-{2,}\s*Original Message\s*-{2,}$`),
}

// signatureMarkers match the first line of a signature block; the
// marker line and everything after it are discarded.
var signatureMarkers = []*regexp.Regexp{
	regexp.MustCompile(`^--\s*$`),
	regexp.MustCompile(`(?i)^С уважением[,!]*\s*$`),
	regexp.MustCompile(`(?i)^Best regards[,!]*\s*$`),
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Body removes quoted-reply lines, cuts at the first signature
// delimiter, collapses blank-line runs, and truncates the result to
// maxChars, appending TruncationMarker if cut. It never fails; the
// result may be empty.
func Body(raw string, maxChars int) string {
	t := strings.ReplaceAll(raw, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")

	var kept []string
	for _, ln := range strings.Split(t, "\n") {
		ln = strings.TrimRight(ln, " \t")
		trimmed := strings.TrimSpace(ln)

		if trimmed == "" {
			kept = append(kept, "")
			continue
		}
		if matchesAny(quoteMarkers, trimmed) {
			continue
		}
		kept = append(kept, ln)
	}

	var final []string
	for _, ln := range kept {
		if matchesAny(signatureMarkers, strings.TrimSpace(ln)) {
			break
		}
		final = append(final, ln)
	}

	out := strings.TrimSpace(strings.Join(final, "\n"))
	out = blankRuns.ReplaceAllString(out, "\n\n")

	if maxChars > 0 && utf8.RuneCountInString(out) > maxChars {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:maxChars])) + "\n\n" + TruncationMarker
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, line string) bool {
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
