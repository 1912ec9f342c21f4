package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/denisok6893-rgb/estatebot/internal/bots"
	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

type fakeSender struct {
	sent      []tgbotapi.Chattable
	requests  int
	rejectIDs bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if d, ok := c.(tgbotapi.DocumentConfig); ok {
		if _, byID := d.File.(tgbotapi.FileID); byID && f.rejectIDs {
			return tgbotapi.Message{}, errors.New("Bad Request: wrong file identifier")
		}
		return tgbotapi.Message{Document: &tgbotapi.Document{FileID: "fresh-id"}}, nil
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type memCache map[string]domain.ProjectFile

func (m memCache) ProjectFileByName(_ context.Context, name string) (domain.ProjectFile, bool, error) {
	f, ok := m[name]
	return f, ok, nil
}

func (m memCache) SaveProjectFile(_ context.Context, f domain.ProjectFile) error {
	m[f.FileName] = f
	return nil
}

type memFiles map[string]string

func (m memFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := m[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type echo struct{}

func (echo) HandleMessage(_ context.Context, msg bots.IncomingMessage) (*bots.OutgoingMessage, error) {
	text := "got " + msg.Text + msg.CallbackData
	if msg.Upload != nil {
		text += msg.Upload.Name + ":" + string(msg.Upload.Data)
	}
	return &bots.OutgoingMessage{ChatID: msg.ChatID, Text: text}, nil
}

var brochure = domain.Document{Key: "projects/Creek Rise/brochure.pdf", Name: "brochure.pdf"}

func TestToIncoming(t *testing.T) {
	msg, ok := toIncoming(tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "Marina",
		Chat: &tgbotapi.Chat{ID: 10},
		From: &tgbotapi.User{ID: 20, UserName: "denis"},
	}})
	if !ok || msg.ChatID != 10 || msg.UserID != 20 || msg.Text != "Marina" || msg.Platform != bots.PlatformTelegram {
		t.Errorf("unexpected message: %+v ok=%v", msg, ok)
	}

	cb, ok := toIncoming(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "q:i:11",
		From:    &tgbotapi.User{ID: 20},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 10}},
	}})
	if !ok || cb.CallbackData != "q:i:11" || cb.ChatID != 10 {
		t.Errorf("unexpected callback: %+v ok=%v", cb, ok)
	}

	if _, ok := toIncoming(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, From: &tgbotapi.User{ID: 1}}}); ok {
		t.Error("a message without text must be ignored")
	}
	if _, ok := toIncoming(tgbotapi.Update{}); ok {
		t.Error("an empty update must be ignored")
	}

	doc, ok := toIncoming(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 10},
		From:     &tgbotapi.User{ID: 20},
		Document: &tgbotapi.Document{FileID: "doc-1", FileName: "projects.xlsx"},
	}})
	if !ok || doc.Upload == nil || doc.Upload.Name != "projects.xlsx" {
		t.Errorf("unexpected document message: %+v ok=%v", doc, ok)
	}
}

func TestHandleUpdateDownloadsUpload(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, DefaultConfig(), bots.NewGateway(echo{}), nil, nil, nil)
	var fetched string
	b.fetch = func(_ context.Context, fileID string) ([]byte, error) {
		fetched = fileID
		return []byte("[]"), nil
	}
	upd := tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 3},
		From:     &tgbotapi.User{ID: 2},
		Document: &tgbotapi.Document{FileID: "doc-1", FileName: "projects.json", FileSize: 2},
	}}

	b.handleUpdate(context.Background(), upd)
	if fetched != "doc-1" || len(api.sent) != 1 {
		t.Fatalf("fetched=%q sends=%d", fetched, len(api.sent))
	}
	if m := api.sent[0].(tgbotapi.MessageConfig); m.Text != "got projects.json:[]" {
		t.Errorf("unexpected reply: %q", m.Text)
	}

	// too large to download: nothing reaches the processor
	upd.Message.Document.FileSize = maxUploadBytes + 1
	fetched = ""
	b.handleUpdate(context.Background(), upd)
	if fetched != "" || len(api.sent) != 1 {
		t.Errorf("oversized upload was processed: fetched=%q sends=%d", fetched, len(api.sent))
	}
}

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text: %q", got)
	}

	// a line break in the second half is preferred
	got := splitText("aaaaaaa\nbbbbbbb", 10)
	if len(got) != 2 || got[0] != "aaaaaaa" || got[1] != "bbbbbbb" {
		t.Errorf("split at line break: %q", got)
	}

	// no line break: hard cut by runes, never inside a character
	long := strings.Repeat("Дубай ", 2000)
	parts := splitText(long, maxTextRunes)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if strings.Join(parts, "") != long {
		t.Error("parts must add up to the text")
	}
	for i, p := range parts {
		if n := utf8.RuneCountInString(p); n > maxTextRunes || !utf8.ValidString(p) {
			t.Errorf("part %d: %d runes valid=%v", i, n, utf8.ValidString(p))
		}
	}
}

func TestDeliverSplitsLongText(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, DefaultConfig(), nil, nil, nil, nil)

	line := strings.Repeat("x", 99) + "\n"
	err := b.deliver(context.Background(), &bots.OutgoingMessage{
		ChatID:  1,
		Text:    strings.Repeat(line, 100),
		Buttons: [][]bots.Button{{{Text: "Main menu", Data: "_menu"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(api.sent))
	}
	for i, c := range api.sent {
		m := c.(tgbotapi.MessageConfig)
		if utf8.RuneCountInString(m.Text) > maxTextRunes {
			t.Errorf("message %d too long: %d", i, utf8.RuneCountInString(m.Text))
		}
		if hasKB := m.ReplyMarkup != nil; hasKB != (i == len(api.sent)-1) {
			t.Errorf("message %d keyboard=%v", i, hasKB)
		}
	}
}

func TestDeliverUsesDocumentProject(t *testing.T) {
	api := &fakeSender{}
	cache := memCache{}
	b := newBot(api, DefaultConfig(), nil, cache, memFiles{brochure.Key: "%PDF"}, nil)

	doc := brochure
	doc.ProjectID = 12
	if err := b.deliver(context.Background(), &bots.OutgoingMessage{ChatID: 1, Text: "Found 1 document(s).", Documents: []domain.Document{doc}}); err != nil {
		t.Fatal(err)
	}
	if cache[brochure.Key].ProjectID != 12 {
		t.Errorf("unexpected cache entry: %+v", cache[brochure.Key])
	}
}

func TestHandleUpdateAnswersCallback(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, DefaultConfig(), bots.NewGateway(echo{}), nil, nil, nil)

	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "_menu",
		From:    &tgbotapi.User{ID: 2},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}},
	}})
	if api.requests != 1 {
		t.Errorf("expected the callback to be answered once, got %d", api.requests)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(api.sent))
	}
	m := api.sent[0].(tgbotapi.MessageConfig)
	if m.ChatID != 3 || m.Text != "got _menu" {
		t.Errorf("unexpected message: chat=%d text=%q", m.ChatID, m.Text)
	}
}

func TestDeliverKeyboard(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, DefaultConfig(), nil, nil, nil, nil)

	err := b.deliver(context.Background(), &bots.OutgoingMessage{
		ChatID:  1,
		Text:    "choose",
		Buttons: [][]bots.Button{{{Text: "Marina Gate 1", Data: "q:k:Marina Gate 1"}}, {{Text: "Main menu", Data: "_menu"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	kb, ok := api.sent[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("unexpected markup: %#v", api.sent[0].(tgbotapi.MessageConfig).ReplyMarkup)
	}
	if got := *kb.InlineKeyboard[0][0].CallbackData; got != "q:k:Marina Gate 1" {
		t.Errorf("callback data = %q", got)
	}
}

func TestSendDocumentUploadsAndCaches(t *testing.T) {
	api := &fakeSender{}
	cache := memCache{}
	b := newBot(api, DefaultConfig(), nil, cache, memFiles{brochure.Key: "%PDF"}, nil)

	if err := b.sendDocument(context.Background(), 1, 12, brochure); err != nil {
		t.Fatal(err)
	}
	d := api.sent[0].(tgbotapi.DocumentConfig)
	if _, ok := d.File.(tgbotapi.FileReader); !ok {
		t.Errorf("expected an upload, got %T", d.File)
	}
	saved := cache[brochure.Key]
	if saved.ChannelFileID != "fresh-id" || saved.ProjectID != 12 || saved.FileType != "pdf" {
		t.Errorf("unexpected cache entry: %+v", saved)
	}
}

func TestSendDocumentReusesCachedID(t *testing.T) {
	api := &fakeSender{}
	cache := memCache{brochure.Key: {FileName: brochure.Key, ChannelFileID: "old-id"}}
	b := newBot(api, DefaultConfig(), nil, cache, memFiles{}, nil)

	if err := b.sendDocument(context.Background(), 1, 12, brochure); err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(api.sent))
	}
	if id, ok := api.sent[0].(tgbotapi.DocumentConfig).File.(tgbotapi.FileID); !ok || id != "old-id" {
		t.Errorf("expected cached id, got %#v", api.sent[0].(tgbotapi.DocumentConfig).File)
	}
}

func TestSendDocumentReuploadsStaleID(t *testing.T) {
	api := &fakeSender{rejectIDs: true}
	cache := memCache{brochure.Key: {FileName: brochure.Key, ChannelFileID: "old-id"}}
	b := newBot(api, DefaultConfig(), nil, cache, memFiles{brochure.Key: "%PDF"}, nil)

	if err := b.sendDocument(context.Background(), 1, 12, brochure); err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 2 {
		t.Fatalf("expected cached attempt and upload, got %d sends", len(api.sent))
	}
	if cache[brochure.Key].ChannelFileID != "fresh-id" {
		t.Errorf("stale id not replaced: %+v", cache[brochure.Key])
	}
}

func TestDeliverKeepsGoingAfterFailedDocument(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, DefaultConfig(), nil, memCache{}, memFiles{brochure.Key: "%PDF"}, nil)

	err := b.deliver(context.Background(), &bots.OutgoingMessage{
		ChatID:      1,
		Text:        "Found 2 document(s).",
		Documents:   []domain.Document{{Key: "missing", Name: "missing.pdf"}, brochure},
		Attachments: []bots.Attachment{{Name: "a.xlsx", Data: []byte("x")}},
	})
	if err == nil {
		t.Error("expected the missing document to be reported")
	}
	// text, brochure upload, attachment
	if len(api.sent) != 3 {
		t.Errorf("expected 3 sends, got %d", len(api.sent))
	}
}

func TestConfigEnabled(t *testing.T) {
	if DefaultConfig().Enabled() {
		t.Error("default config must be disabled")
	}
	if _, err := New(DefaultConfig(), nil, nil, nil, nil); err == nil {
		t.Error("expected an error without a token")
	}
}
