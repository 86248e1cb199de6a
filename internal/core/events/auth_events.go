package events

import "github.com/google/uuid"

const (
	EventTypeEmailVerificationRequested = "auth.email_verification_requested"
	EventTypePasswordResetRequested     = "auth.password_reset_requested"
)

// TokenIssuedEvent carries a freshly stored single-use token to whoever delivers it.
type TokenIssuedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Token  string `json:"-"`
}

func newTokenIssuedEvent(eventType, userID, name, email, token string) *TokenIssuedEvent {
	return &TokenIssuedEvent{
		BaseEvent: BaseEvent{
			ID:   uuid.New().String(),
			Type: eventType,
		},
		UserID: userID,
		Name:   name,
		Email:  email,
		Token:  token,
	}
}

func NewEmailVerificationRequestedEvent(userID, name, email, token string) *TokenIssuedEvent {
	return newTokenIssuedEvent(EventTypeEmailVerificationRequested, userID, name, email, token)
}

func NewPasswordResetRequestedEvent(userID, name, email, token string) *TokenIssuedEvent {
	return newTokenIssuedEvent(EventTypePasswordResetRequested, userID, name, email, token)
}
