// Package claim detects ticket identifiers embedded in subject lines.
package claim

import "regexp"

// claimIDPattern matches a claim identifier: at least four digits,
// optionally followed by a hyphen and an uppercase location code of
// two or more Latin or Cyrillic letters (e.g. "12345", "12345-МСК").
// The pattern is a fixed contract; changing it changes which section
// a message lands in.
var claimIDPattern = regexp.MustCompile(`\d{4,}(?:-[A-ZА-ЯЁ]{2,})?`)

// Extract returns the first claim identifier found in subject,
// verbatim including any location suffix, or "" when none is present.
func Extract(subject string) string {
	return claimIDPattern.FindString(subject)
}
