package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the local identity record for an external auth subject.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	ImageURL  string    `json:"imageUrl"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
