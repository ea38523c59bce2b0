// Package bot runs one long-lived chat worker per active project token.
package bot

import "context"

// Contact is a phone number shared by the chat user.
type Contact struct {
	Phone       string
	FirstName   string
	LastName    string
	DisplayName string
}

// Update is one inbound event from the messaging platform.
type Update struct {
	ChatID  int64
	Text    string
	Contact *Contact
}

// Platform is the wire-level contract with the messaging platform. Connect
// must fail fast on an invalid or revoked token instead of retrying.
type Platform interface {
	Connect(ctx context.Context) error
	Updates(ctx context.Context) (<-chan Update, error)
	SendText(ctx context.Context, chatID int64, text string) error
	RequestContact(ctx context.Context, chatID int64, text string) error
	Close() error
}
