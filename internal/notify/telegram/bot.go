package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avolkov/maildigest/internal/store"
)

// Bot answers operator commands from a single owner chat. Messages
// from any other chat are ignored.
type Bot struct {
	client  *Client
	chatID  int64
	folder  string
	store   store.Store
	trigger chan<- struct{}
	logger  *slog.Logger

	pollTimeout int
}

// NewBot creates the command bot. trigger receives a value for each
// accepted /digest_now command; a full channel means a run is already
// pending and the command is acknowledged without queueing another.
func NewBot(
	client *Client,
	chatID int64,
	folder string,
	s store.Store,
	trigger chan<- struct{},
	logger *slog.Logger,
) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		client:      client,
		chatID:      chatID,
		folder:      folder,
		store:       s,
		trigger:     trigger,
		logger:      logger,
		pollTimeout: 50,
	}
}

// Run long-polls for commands until ctx is cancelled. Commands that
// accumulated while the daemon was down are discarded on startup, so a
// stale /digest_now cannot fire a run the operator no longer expects.
func (b *Bot) Run(ctx context.Context) error {
	offset, err := b.drainBacklog(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("discarding stale commands failed", "err", err)
	}

	for {
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("polling for commands failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handleUpdate(ctx, u)
		}
	}
}

// drainBacklog consumes every stored update without acting on it and
// returns the offset of the first live update.
func (b *Bot) drainBacklog(ctx context.Context) (int64, error) {
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, 0)
		if err != nil {
			return offset, err
		}
		if len(updates) == 0 {
			return offset, nil
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
		b.logger.Info("discarded stale commands", "count", len(updates))
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u Update) {
	if u.Message == nil {
		return
	}
	if u.Message.Chat.ID != b.chatID {
		b.logger.Warn("ignoring command from unknown chat",
			"chat_id", u.Message.Chat.ID)
		return
	}

	command := strings.TrimSpace(u.Message.Text)
	// Commands may carry the bot username suffix, as in /status@somebot.
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}

	reply, err := b.execute(ctx, command)
	if err != nil {
		b.logger.Error("command failed", "command", command, "err", err)
		reply = "Ошибка: " + err.Error()
	}
	if reply == "" {
		return
	}
	if err := b.client.SendMessage(ctx, b.chatID, reply); err != nil {
		b.logger.Warn("sending command reply failed", "err", err)
	}
}

func (b *Bot) execute(ctx context.Context, command string) (string, error) {
	switch command {
	case "/status":
		return b.statusReply(ctx)

	case "/pause":
		if err := b.store.SetPaused(ctx, true); err != nil {
			return "", err
		}
		return "Автоматические дайджесты приостановлены.", nil

	case "/resume":
		if err := b.store.SetPaused(ctx, false); err != nil {
			return "", err
		}
		return "Автоматические дайджесты возобновлены.", nil

	case "/digest_now":
		select {
		case b.trigger <- struct{}{}:
			return "Запускаю дайджест.", nil
		default:
			return "Дайджест уже запланирован.", nil
		}

	case "":
		return "", nil

	default:
		if strings.HasPrefix(command, "/") {
			return "Неизвестная команда. Доступны: /status, /pause, /resume, /digest_now", nil
		}
		return "", nil
	}
}

func (b *Bot) statusReply(ctx context.Context) (string, error) {
	paused, err := b.store.GetPaused(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if paused {
		sb.WriteString("Статус: приостановлен\n")
	} else {
		sb.WriteString("Статус: работает\n")
	}

	last, err := b.store.LastRun(ctx, b.folder)
	if err != nil {
		return "", err
	}
	if last == nil {
		sb.WriteString("Запусков еще не было.")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "Последний запуск: %s\n",
		last.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Писем обработано: %d, с ошибками: %d", last.Total, last.Failed)
	if last.Error != "" {
		fmt.Fprintf(&sb, "\nОшибка запуска: %s", last.Error)
	}
	return sb.String(), nil
}
