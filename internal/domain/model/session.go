package model

import "encoding/json"

// User is the authenticated coach profile.
type User struct {
	ID       string `json:"user_id"`
	Email    string `json:"email"`
	Type     string `json:"user_type"`
	FullName string `json:"full_name"`
}

// Session pairs the bearer credential with its user.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Valid reports whether the session carries a credential.
func (s Session) Valid() bool {
	return s.Token != ""
}

// Receipt is the backend's confirmation body, kept verbatim.
type Receipt struct {
	Body json.RawMessage
}

// Message returns the receipt's "message" field when present.
func (r Receipt) Message() string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return ""
	}
	return body.Message
}

// MarshalJSON emits the body unchanged.
func (r Receipt) MarshalJSON() ([]byte, error) {
	if len(r.Body) == 0 {
		return []byte("null"), nil
	}
	return r.Body, nil
}
