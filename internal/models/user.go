package models

import "time"

type User struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`

	CreatedAt time.Time `json:"created_at"`
}
