package dto

import "time"

type DialogueSession struct {
	ChatID    int64     `db:"chat_id"`
	State     string    `db:"state"`
	Total     int       `db:"total"`
	Current   int       `db:"current_device"`
	Platforms []string  `db:"platforms"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type ProvisionedClient struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	UserID    int64     `db:"user_id"`
	Platform  string    `db:"platform"`
	ClientID  string    `db:"client_id"`
	SubURL    string    `db:"sub_url"`
	CreatedAt time.Time `db:"created_at"`
}
