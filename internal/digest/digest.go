// Package digest groups processed messages into fixed categories and
// renders the ordered report text. The section counts are computed from
// partition sizes, never taken from model output, so the digest's
// arithmetic is always consistent with its listed items.
package digest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/avolkov/maildigest/internal/model"
)

// Counts is the numeric summary of one batch, derived purely from
// partition membership.
type Counts struct {
	Claims      int
	Others      int
	Unprocessed int
	Total       int
}

// SubjectGroup is one subject-keyed group in the OTHER section.
type SubjectGroup struct {
	// Label is the display subject of the group, taken from the
	// first message seen with this normalized subject.
	Label string

	// Items are the group's messages in ascending UID order.
	Items []model.ProcessedItem
}

// Sections is the categorized form of one processed batch. Every item
// belongs to exactly one of Claims, Others, or Unprocessed.
type Sections struct {
	Counts      Counts
	Claims      []model.ProcessedItem
	Others      []SubjectGroup
	Unprocessed []model.ProcessedItem
}

// Build partitions items by precedence: failed items go to Unprocessed
// even when they carry a claim id, items with a claim id go to Claims,
// everything else is grouped by normalized subject in first-seen group
// order. Input order inside each bucket is ascending UID.
func Build(items []model.ProcessedItem) Sections {
	sorted := make([]model.ProcessedItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UID < sorted[j].UID
	})

	var s Sections
	groupIndex := make(map[string]int)

	for _, it := range sorted {
		switch {
		case it.Failed:
			s.Unprocessed = append(s.Unprocessed, it)
		case it.ClaimID != "":
			s.Claims = append(s.Claims, it)
		default:
			key := normalizeSubject(it.Subject)
			idx, ok := groupIndex[key]
			if !ok {
				idx = len(s.Others)
				groupIndex[key] = idx
				s.Others = append(s.Others, SubjectGroup{
					Label: groupLabel(it.Subject),
				})
			}
			s.Others[idx].Items = append(s.Others[idx].Items, it)
		}
	}

	s.Counts = Counts{
		Claims:      len(s.Claims),
		Unprocessed: len(s.Unprocessed),
		Total:       len(sorted),
	}
	for _, g := range s.Others {
		s.Counts.Others += len(g.Items)
	}

	return s
}

// replyPrefix matches leading "Re:"/"Fwd:" style prefixes, which are
// ignored for grouping so a thread collapses into one group.
var replyPrefix = regexp.MustCompile(`(?i)^\s*((re|fwd?|fw)\s*:\s*)+`)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// normalizeSubject produces the grouping key for a subject: reply
// prefixes stripped, case folded, whitespace collapsed.
func normalizeSubject(subject string) string {
	s := replyPrefix.ReplaceAllString(subject, "")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "(без темы)"
	}
	return s
}

// groupLabel is the display form of a group's subject.
func groupLabel(subject string) string {
	s := replyPrefix.ReplaceAllString(subject, "")
	s = strings.TrimSpace(whitespaceRuns.ReplaceAllString(s, " "))
	if s == "" {
		return "(без темы)"
	}
	return s
}

// Render produces the digest text: SUMMARY, CLAIMS, OTHER, UNPROCESSED
// in fixed order. Empty sections are omitted; SUMMARY is always present.
func Render(s Sections) string {
	var b strings.Builder

	b.WriteString("СВОДКА:\n")
	fmt.Fprintf(&b, "Всего писем: %d\n", s.Counts.Total)
	fmt.Fprintf(&b, "Заявки: %d\n", s.Counts.Claims)
	fmt.Fprintf(&b, "Прочее: %d\n", s.Counts.Others)
	fmt.Fprintf(&b, "Не обработано: %d\n", s.Counts.Unprocessed)

	if len(s.Claims) > 0 {
		b.WriteString("\nЗАЯВКИ:\n")
		for _, it := range s.Claims {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", it.ClaimID, it.Subject, it.Synopsis)
		}
	}

	if len(s.Others) > 0 {
		b.WriteString("\nПРОЧЕЕ:\n")
		for i, g := range s.Others {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[%s]\n", g.Label)
			for _, it := range g.Items {
				fmt.Fprintf(&b, "- %s: %s\n", it.FromLabel, it.Synopsis)
			}
		}
	}

	if len(s.Unprocessed) > 0 {
		b.WriteString("\nНЕ ОБРАБОТАНО:\n")
		for _, it := range s.Unprocessed {
			fmt.Fprintf(&b, "- %s [ошибка обработки]\n", it.Subject)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
