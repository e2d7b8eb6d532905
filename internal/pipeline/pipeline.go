// Package pipeline runs one incremental digest batch: it decides which
// messages are new, processes each one, aggregates the outcomes, and
// advances the cursor exactly once at the end.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/maildigest/internal/chunk"
	"github.com/avolkov/maildigest/internal/claim"
	"github.com/avolkov/maildigest/internal/clean"
	"github.com/avolkov/maildigest/internal/digest"
	"github.com/avolkov/maildigest/internal/model"
	"github.com/avolkov/maildigest/internal/store"
)

// Mailbox is the narrow mailbox-transport contract the pipeline
// consumes. Any error from it aborts the run without a cursor write.
type Mailbox interface {
	FolderIdentity(ctx context.Context, folder string) (string, error)
	FetchRange(ctx context.Context, folder string, floorUID uint32, maxCount int) ([]model.RawMessage, error)
}

// Summarizer produces a one-line synopsis for a single message. An
// error is scoped to that message only.
type Summarizer interface {
	Summarize(ctx context.Context, subject, fromLabel, body string, maxChars int) (string, error)
}

// Options bounds the work of one run.
type Options struct {
	Folder        string
	MaxPerRun     int
	MaxBodyChars  int
	SynopsisChars int
	ChunkSize     int
}

// Result is the outcome of one completed run.
type Result struct {
	// Chunks are the ready-to-send digest parts, in order.
	Chunks []string

	// Total is the number of messages fetched in the batch.
	Total int

	// Failed is the number of messages whose synopsis step errored.
	Failed int

	// LastUID is the cursor position after the run.
	LastUID uint32

	// HardCut reports that a single digest entry exceeded the chunk
	// size and was cut mid-entry.
	HardCut bool
}

// Pipeline assembles digests from new mailbox messages. It owns cursor
// state exclusively; callers must not run two batches concurrently.
type Pipeline struct {
	store      store.Store
	mailbox    Mailbox
	summarizer Summarizer
	opts       Options
	logger     *slog.Logger
}

// New creates a digest pipeline.
func New(
	s store.Store,
	mb Mailbox,
	sum Summarizer,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      s,
		mailbox:    mb,
		summarizer: sum,
		opts:       opts,
		logger:     logger,
	}
}

// Run executes one digest batch. Per-message summarization failures
// are folded into the digest's UNPROCESSED section; only transport
// and state errors abort the run, and an aborted run performs no
// cursor write at all, so the next run re-fetches the same range.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	startedAt := time.Now()

	result, runErr := p.run(ctx)

	record := model.RunRecord{
		ID:         uuid.New().String(),
		Folder:     p.opts.Folder,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if result != nil {
		record.Total = result.Total
		record.Failed = result.Failed
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	if err := p.store.RecordRun(ctx, record); err != nil {
		p.logger.Warn("recording run history failed", "err", err)
	}

	return result, runErr
}

func (p *Pipeline) run(ctx context.Context) (*Result, error) {
	identity, err := p.mailbox.FolderIdentity(ctx, p.opts.Folder)
	if err != nil {
		return nil, fmt.Errorf("reading folder identity: %w", err)
	}

	floor, err := p.store.Reconcile(ctx, p.opts.Folder, identity)
	if err != nil {
		return nil, fmt.Errorf("reconciling cursor: %w", err)
	}

	messages, err := p.mailbox.FetchRange(ctx, p.opts.Folder, floor, p.opts.MaxPerRun)
	if err != nil {
		return nil, fmt.Errorf("fetching new messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Info("no new messages", "folder", p.opts.Folder, "floor", floor)
		return &Result{
			Chunks:  []string{fmt.Sprintf("Новых писем в папке %s нет.", p.opts.Folder)},
			LastUID: floor,
		}, nil
	}

	items := make([]model.ProcessedItem, 0, len(messages))
	maxUID := floor
	failed := 0

	for _, msg := range messages {
		if msg.UID > maxUID {
			maxUID = msg.UID
		}
		item := p.process(ctx, msg)
		if item.Failed {
			failed++
		}
		items = append(items, item)
	}

	sections := digest.Build(items)
	text := digest.Render(sections)
	chunks, hardCut := chunk.Split(text, p.opts.ChunkSize)

	// The cursor moves exactly once per run, after categorization,
	// using the maximum fetched UID. Failed items count: otherwise one
	// bad message would be re-fetched forever.
	if err := p.store.AdvanceCursor(ctx, p.opts.Folder, maxUID); err != nil {
		return nil, fmt.Errorf("advancing cursor: %w", err)
	}

	p.logger.Info("digest assembled",
		"folder", p.opts.Folder,
		"total", len(messages),
		"failed", failed,
		"last_uid", maxUID,
		"chunks", len(chunks),
	)

	return &Result{
		Chunks:  chunks,
		Total:   len(messages),
		Failed:  failed,
		LastUID: maxUID,
		HardCut: hardCut,
	}, nil
}

// process runs the normalize/summarize/classify sequence for one
// message. A summarization error becomes a failed item, never an
// aborted run.
func (p *Pipeline) process(ctx context.Context, msg model.RawMessage) model.ProcessedItem {
	item := model.ProcessedItem{
		UID:       msg.UID,
		Subject:   msg.Subject,
		FromLabel: msg.FromLabel(),
		ClaimID:   claim.Extract(msg.Subject),
	}

	body := clean.Body(msg.Body, p.opts.MaxBodyChars)

	synopsis, err := p.summarizer.Summarize(
		ctx, msg.Subject, item.FromLabel, body, p.opts.SynopsisChars,
	)
	if err != nil {
		p.logger.Warn("summarization failed",
			"uid", msg.UID, "subject", msg.Subject, "err", err)
		item.Failed = true
		item.FailReason = err.Error()
		return item
	}

	item.Synopsis = synopsis
	return item
}
