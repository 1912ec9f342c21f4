// Package telegram connects the bot processor to Telegram over long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/denisok6893-rgb/estatebot/internal/bots"
	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

type Config struct {
	Token string `koanf:"token" yaml:"token"`
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int  `koanf:"poll_timeout" yaml:"poll_timeout"`
	Debug       bool `koanf:"debug" yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{PollTimeout: 60}
}

// Enabled reports whether a bot token is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.Token) != "" }

// Sender is the part of the Bot API used to answer.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// FileCache remembers Telegram file ids of documents already uploaded.
type FileCache interface {
	ProjectFileByName(ctx context.Context, name string) (domain.ProjectFile, bool, error)
	SaveProjectFile(ctx context.Context, f domain.ProjectFile) error
}

// Telegram limits.
const (
	maxTextRunes   = 4096
	maxUploadBytes = 20 << 20
)

// Opener streams a document from the file store.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type Bot struct {
	client *tgbotapi.BotAPI
	api    Sender
	cfg    Config
	gw     *bots.Gateway
	cache  FileCache
	files  Opener
	log    *slog.Logger
	// fetch downloads a file a user sent.
	fetch func(ctx context.Context, fileID string) ([]byte, error)
}

// New logs in with the configured token. files may be nil when no file store is configured.
func New(cfg Config, gw *bots.Gateway, cache FileCache, files Opener, log *slog.Logger) (*Bot, error) {
	if !cfg.Enabled() {
		return nil, errors.New("telegram token not configured")
	}
	client, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	client.Debug = cfg.Debug
	b := newBot(client, cfg, gw, cache, files, log)
	b.client = client
	b.fetch = b.download
	b.log.Info("authorized", slog.String("bot", client.Self.UserName))
	return b, nil
}

func newBot(api Sender, cfg Config, gw *bots.Gateway, cache FileCache, files Opener, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		api:   api,
		cfg:   cfg,
		gw:    gw,
		cache: cache,
		files: files,
		log:   log.With(slog.String("component", "telegram")),
	}
}

// Run polls for updates until ctx is cancelled. Updates are handled one at a time.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.client.GetUpdatesChan(u)
	defer b.client.StopReceivingUpdates()

	b.log.Info("polling", slog.Int("timeout", b.cfg.PollTimeout))
	for {
		select {
		case <-ctx.Done():
			b.log.Info("polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return errors.New("telegram updates channel closed")
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg, ok := toIncoming(upd)
	if !ok {
		return
	}
	if cq := upd.CallbackQuery; cq != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.log.Warn("answer callback", slog.String("error", err.Error()))
		}
	}

	if msg.Upload != nil {
		data, err := b.fetchUpload(ctx, upd.Message.Document)
		if err != nil {
			b.log.Warn("download upload", slog.Int64("chat_id", msg.ChatID), slog.String("error", err.Error()))
			return
		}
		msg.Upload.Data = data
	}

	out, err := b.gw.Process(ctx, msg)
	if err != nil {
		b.log.Error("process message", slog.Int64("chat_id", msg.ChatID), slog.String("error", err.Error()))
		return
	}
	if err := b.deliver(ctx, out); err != nil {
		b.log.Error("deliver reply", slog.Int64("chat_id", out.ChatID), slog.String("error", err.Error()))
	}
}

func (b *Bot) fetchUpload(ctx context.Context, doc *tgbotapi.Document) ([]byte, error) {
	if doc.FileSize > maxUploadBytes {
		return nil, fmt.Errorf("%s: %d bytes exceeds %d", doc.FileName, doc.FileSize, maxUploadBytes)
	}
	if b.fetch == nil {
		return nil, errors.New("file downloads are not available")
	}
	return b.fetch(ctx, doc.FileID)
}

// download fetches a file through the Bot API file endpoint.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.client.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("download file: larger than %d bytes", maxUploadBytes)
	}
	return data, nil
}

// toIncoming converts text messages, documents, and button presses; everything else is ignored.
func toIncoming(upd tgbotapi.Update) (bots.IncomingMessage, bool) {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return bots.IncomingMessage{}, false
		}
		return bots.IncomingMessage{
			Platform:     bots.PlatformTelegram,
			ChatID:       cq.Message.Chat.ID,
			UserID:       cq.From.ID,
			UserName:     cq.From.UserName,
			CallbackData: cq.Data,
		}, true
	case upd.Message != nil:
		m := upd.Message
		if m.From == nil || m.Chat == nil || (m.Text == "" && m.Document == nil) {
			return bots.IncomingMessage{}, false
		}
		msg := bots.IncomingMessage{
			Platform: bots.PlatformTelegram,
			ChatID:   m.Chat.ID,
			UserID:   m.From.ID,
			UserName: m.From.UserName,
			Text:     m.Text,
		}
		if m.Document != nil {
			msg.Upload = &bots.Attachment{Name: m.Document.FileName}
		}
		return msg, true
	}
	return bots.IncomingMessage{}, false
}

// deliver sends the text with its keyboard, then documents, then attachments.
// Long text goes out in several messages with the keyboard on the last one.
// A failed document does not stop the rest.
func (b *Bot) deliver(ctx context.Context, out *bots.OutgoingMessage) error {
	parts := splitText(out.Text, maxTextRunes)
	for i, part := range parts {
		m := tgbotapi.NewMessage(out.ChatID, part)
		if kb, ok := keyboard(out.Buttons); ok && i == len(parts)-1 {
			m.ReplyMarkup = kb
		}
		if _, err := b.api.Send(m); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}

	var errs []error
	for _, doc := range out.Documents {
		projectID := out.ProjectID
		if doc.ProjectID != 0 {
			projectID = doc.ProjectID
		}
		if err := b.sendDocument(ctx, out.ChatID, projectID, doc); err != nil {
			errs = append(errs, err)
		}
	}
	for _, a := range out.Attachments {
		d := tgbotapi.NewDocument(out.ChatID, tgbotapi.FileBytes{Name: a.Name, Bytes: a.Data})
		if _, err := b.api.Send(d); err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

// splitText cuts text into pieces of at most limit runes, at a line break when one
// falls in the second half of the piece.
func splitText(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}
	var parts []string
	for len(r) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		if part := strings.TrimRight(string(r[:cut]), "\n"); part != "" {
			parts = append(parts, part)
		}
		r = r[cut:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}

func keyboard(rows [][]bots.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(btns...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...), true
}

// sendDocument reuses the cached Telegram file id when there is one. A rejected id is
// replaced by a fresh upload.
func (b *Bot) sendDocument(ctx context.Context, chatID int64, projectID int, doc domain.Document) error {
	if b.cache != nil {
		cached, ok, err := b.cache.ProjectFileByName(ctx, doc.Key)
		if err != nil {
			b.log.Warn("file cache lookup", slog.String("key", doc.Key), slog.String("error", err.Error()))
		}
		if ok {
			_, err := b.api.Send(tgbotapi.NewDocument(chatID, tgbotapi.FileID(cached.ChannelFileID)))
			if err == nil {
				return nil
			}
			b.log.Warn("cached file rejected, uploading again", slog.String("key", doc.Key), slog.String("error", err.Error()))
		}
	}
	return b.upload(ctx, chatID, projectID, doc)
}

func (b *Bot) upload(ctx context.Context, chatID int64, projectID int, doc domain.Document) error {
	if b.files == nil {
		return fmt.Errorf("upload %s: no file store configured", doc.Key)
	}
	rc, err := b.files.Open(ctx, doc.Key)
	if err != nil {
		return err
	}
	defer rc.Close()

	sent, err := b.api.Send(tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: doc.Name, Reader: rc}))
	if err != nil {
		return fmt.Errorf("upload %s: %w", doc.Key, err)
	}
	if b.cache == nil || sent.Document == nil {
		return nil
	}
	err = b.cache.SaveProjectFile(ctx, domain.ProjectFile{
		ProjectID:     projectID,
		FileName:      doc.Key,
		FileType:      strings.TrimPrefix(path.Ext(doc.Name), "."),
		ChannelFileID: sent.Document.FileID,
	})
	if err != nil {
		b.log.Warn("file cache save", slog.String("key", doc.Key), slog.String("error", err.Error()))
	}
	return nil
}
