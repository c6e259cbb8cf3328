package user

import (
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
)

type User struct {
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) Profile() protocol.Profile {
	return protocol.Profile{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}
