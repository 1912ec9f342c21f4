package bots

import "github.com/denisok6893-rgb/estatebot/internal/domain"

// Platform identifies the messaging platform.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformHTTP     Platform = "http"
)

// IncomingMessage represents a message or a button press received from any platform.
type IncomingMessage struct {
	Platform     Platform `json:"platform"`
	ChatID       int64    `json:"chat_id"`
	UserID       int64    `json:"user_id"`
	UserName     string   `json:"user_name"`
	Text         string   `json:"text,omitempty"`
	CallbackData string   `json:"callback_data,omitempty"` // set when a button was pressed
	// Upload is a file the user sent, such as a projects workbook for import.
	Upload *Attachment `json:"upload,omitempty"`
}

// Button is one inline keyboard button. Data comes back as CallbackData.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Attachment is a file sent along with a message: generated for a reply or uploaded by a user.
type Attachment struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// OutgoingMessage represents a response to send back.
type OutgoingMessage struct {
	ChatID      int64             `json:"chat_id"`
	Text        string            `json:"text"`
	Buttons     [][]Button        `json:"buttons,omitempty"`
	ProjectID   int               `json:"project_id,omitempty"`
	Documents   []domain.Document `json:"documents,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
}
