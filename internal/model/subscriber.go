package model

type SubscriberStatus string

const (
	SubscriberStatusActive  SubscriberStatus = "active"
	SubscriberStatusBlocked SubscriberStatus = "blocked"
)

// Subscriber is an end user of a project's bot, created on first
// successful authentication (or manually by an admin).
type Subscriber struct {
	ID             string           `json:"id" db:"id"`
	ProjectID      string           `json:"project_id" db:"project_id"`
	ChatID         int64            `json:"chat_id" db:"chat_id"`
	Phone          string           `json:"phone" db:"phone"`
	DisplayName    string           `json:"display_name" db:"display_name"`
	Status         SubscriberStatus `json:"status" db:"status"`
	FirstLoginTime int64            `json:"first_login_time" db:"first_login_time"`
	Ctime          int64            `json:"ctime" db:"ctime"`
}
