// Package protocol holds the JSON shapes exchanged between the chat server and its clients,
// over the websocket and over the REST endpoints.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Websocket event names.
const (
	EventMessage  = "message"
	EventActivity = "activity"
	EventAck      = "ack"
)

// Ack statuses.
const (
	StatusOK         = 200
	StatusBadRequest = 400
	StatusInternal   = 500
)

// Envelope frames every websocket event. ID is set on client requests and echoed on their ack.
type Envelope struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals payload into an envelope and the envelope into bytes.
func Encode(event string, id uint64, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, ID: id, Data: data})
}

type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// ProfileStatus is a profile with the live presence flag.
type ProfileStatus struct {
	Profile
	IsActive bool `json:"isActive"`
}

// SendRequest is the payload of a client "message" event.
type SendRequest struct {
	RecipientEmail string `json:"recipientEmail" validate:"required,max=50,campus_email"`
	Text           string `json:"text" validate:"required,max=500"`
	Image          string `json:"image,omitempty" validate:"omitempty,datauri,image_datauri"`
}

// ChatMessage is a message as seen by one side of the conversation.
// Exactly one of SenderUser (push to the recipient) or RecipientUser (ack to the sender) is set.
type ChatMessage struct {
	SenderUser    *Profile  `json:"senderUser,omitempty"`
	RecipientUser *Profile  `json:"recipientUser,omitempty"`
	Text          string    `json:"text"`
	Image         string    `json:"image,omitempty"`
	DateSent      time.Time `json:"dateSent"`
}

type Ack struct {
	Status       int          `json:"status"`
	Message      *ChatMessage `json:"message,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

func (a Ack) OK() bool { return a.Status == StatusOK }

type Activity struct {
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}

// StoredMessage is a persisted message as returned by GET /chats.
type StoredMessage struct {
	SenderEmail string    `json:"senderEmail"`
	Text        string    `json:"text"`
	Image       string    `json:"image,omitempty"`
	DateSent    time.Time `json:"dateSent"`
}

// SessionView is one conversation in the GET /chats snapshot.
type SessionView struct {
	ID                    string          `json:"id"`
	Participant0Email     string          `json:"participant0Email"`
	Participant0FirstName string          `json:"participant0FirstName"`
	Participant0LastName  string          `json:"participant0LastName"`
	Participant0Active    bool            `json:"participant0Active"`
	Participant1Email     string          `json:"participant1Email"`
	Participant1FirstName string          `json:"participant1FirstName"`
	Participant1LastName  string          `json:"participant1LastName"`
	Participant1Active    bool            `json:"participant1Active"`
	Messages              []StoredMessage `json:"messages"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// Peer returns the participant that is not self, with its presence flag.
func (v SessionView) Peer(self string) ProfileStatus {
	if v.Participant0Email == self {
		return ProfileStatus{
			Profile:  Profile{FirstName: v.Participant1FirstName, LastName: v.Participant1LastName, Email: v.Participant1Email},
			IsActive: v.Participant1Active,
		}
	}
	return ProfileStatus{
		Profile:  Profile{FirstName: v.Participant0FirstName, LastName: v.Participant0LastName, Email: v.Participant0Email},
		IsActive: v.Participant0Active,
	}
}

// Auth payloads.

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,max=50,campus_email"`
	Password  string `json:"password" validate:"required,min=8,max=50"`
	FirstName string `json:"firstName" validate:"required,max=50"`
	LastName  string `json:"lastName" validate:"required,max=50"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=50"`
}

type LoginResponse struct {
	AuthToken string `json:"authToken"`
	Profile
}
