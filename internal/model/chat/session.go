package chat

import "time"

// Session captures a transient anonymous conversation bound to one backend profile.
type Session struct {
	ID        string    `json:"id"`
	BackendID string    `json:"backendId"`
	CreatedAt time.Time `json:"createdAt"`
}
