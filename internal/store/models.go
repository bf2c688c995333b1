package store

import "time"

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	LastLoginAt    time.Time `json:"last_login_at"`
}

type Exam struct {
	ID         string    `json:"id"` // UUID
	UserID     int64     `json:"user_id"`
	Topic      string    `json:"topic"`
	Difficulty string    `json:"difficulty"`
	Questions  int       `json:"questions"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
