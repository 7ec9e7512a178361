package chat

import (
	"encoding/json"
	"time"
)

// User identifies an authenticated account. The backend may attach fields
// beyond the username; they are kept verbatim and handed back on marshal.
type User struct {
	Username string
	raw      json.RawMessage
}

// NewUser builds a User that carries only a username.
func NewUser(username string) User {
	return User{Username: username}
}

// UnmarshalJSON keeps the whole object so unknown fields survive a round trip.
func (u *User) UnmarshalJSON(data []byte) error {
	var fields struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	u.Username = fields.Username
	u.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the object the backend sent, or a minimal one.
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.raw) > 0 {
		return u.raw, nil
	}
	return json.Marshal(struct {
		Username string `json:"username"`
	}{u.Username})
}

// Raw returns the JSON object the backend sent for this user, if any.
func (u User) Raw() json.RawMessage {
	return append(json.RawMessage(nil), u.raw...)
}

// Session records whether someone is logged in and who. The zero value is
// the anonymous session.
type Session struct {
	identity *User
}

// Anonymous returns a session with no identity.
func Anonymous() Session {
	return Session{}
}

// Authenticated returns a session for u.
func Authenticated(u User) Session {
	return Session{identity: &u}
}

// Present reports whether the session carries an identity.
func (s Session) Present() bool {
	return s.identity != nil
}

// Identity returns the logged in user and whether there is one.
func (s Session) Identity() (User, bool) {
	if s.identity == nil {
		return User{}, false
	}
	return *s.identity, true
}

// Username is a shortcut for the identity's username; empty when anonymous.
func (s Session) Username() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.Username
}

// Message is one entry of a room's message view.
type Message struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Room      string    `json:"room,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OutgoingMessage is the payload of a chatMessage event sent by this client.
type OutgoingMessage struct {
	Room    string `json:"room"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}
