package model

import (
	"strings"
	"time"
)

// Cursor is the durable marker of the highest mailbox UID already
// incorporated into a digest for one monitored folder.
type Cursor struct {
	// Folder is the IMAP folder this cursor tracks.
	Folder string `db:"folder"`

	// UIDValidity is the folder identity token reported by the server.
	// When the observed value differs from the stored one the UID space
	// has been invalidated and LastUID must be reset to 0.
	UIDValidity string `db:"uidvalidity"`

	// LastUID is the highest UID already incorporated into a digest.
	// It only increases within a UIDValidity epoch.
	LastUID uint32 `db:"last_uid"`
}

// RawMessage is one mailbox message as fetched for a single run.
// It is never persisted; the cursor is the only durable trace of it.
type RawMessage struct {
	// UID is the message's IMAP UID, strictly above the cursor floor.
	UID uint32

	// Subject is the decoded Subject header.
	Subject string

	// FromName is the display name from the From header, if any.
	FromName string

	// FromAddr is the address part of the From header.
	FromAddr string

	// Body is the extracted plain-text body.
	Body string

	// Date is the message date reported by the server.
	Date time.Time
}

// FromLabel renders the sender as "Name (domain)" for digest entries,
// degrading to whichever part is available.
func (m RawMessage) FromLabel() string {
	name := strings.TrimSpace(m.FromName)
	domain := addrDomain(m.FromAddr)

	switch {
	case name != "" && domain != "":
		return name + " (" + domain + ")"
	case name != "":
		return name
	case domain != "":
		return domain
	case m.FromAddr != "":
		return m.FromAddr
	default:
		return "unknown"
	}
}

// addrDomain returns the lowercased domain of an email address,
// or "" if the value does not look like an address.
func addrDomain(addr string) string {
	addr = strings.TrimSpace(addr)
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}

// ProcessedItem is the per-message outcome of the
// normalize/summarize/classify sequence. Items are never dropped:
// a summarization failure is recorded, not raised.
type ProcessedItem struct {
	// UID is the originating message UID; aggregation preserves
	// ascending UID order.
	UID uint32

	// Subject is the original decoded subject line.
	Subject string

	// FromLabel is the rendered sender label.
	FromLabel string

	// ClaimID is the ticket identifier extracted from the subject,
	// or "" when none was found.
	ClaimID string

	// Synopsis is the one-line model-produced summary. Empty when
	// Failed is true.
	Synopsis string

	// Failed reports that the synopsis step errored for this message.
	Failed bool

	// FailReason holds the failure description for the UNPROCESSED
	// section. Empty when Failed is false.
	FailReason string
}

// RunRecord captures the outcome of one digest run for status reporting.
type RunRecord struct {
	// ID is the unique identifier of this run.
	ID string `db:"id"`

	// Folder is the mailbox folder the run processed.
	Folder string `db:"folder"`

	// StartedAt is when the run began.
	StartedAt time.Time `db:"started_at"`

	// FinishedAt is when the run completed or aborted.
	FinishedAt time.Time `db:"finished_at"`

	// Total is the number of messages fetched in the batch.
	Total int `db:"total"`

	// Failed is the number of messages whose synopsis step errored.
	Failed int `db:"failed"`

	// Error holds the batch-fatal error text for an aborted run,
	// or "" for a completed one.
	Error string `db:"error"`
}
