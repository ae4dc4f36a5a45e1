package logsink

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleFeedback  Role = "feedback"
)

// UnknownIdentity is attached to records submitted before the auth
// collaborator issued an identity.
const UnknownIdentity = "unknown"

// LogRecord is a single append-only conversation log entry.
type LogRecord struct {
	Role          Role   `json:"role"`
	Content       string `json:"content"`
	EventID       string `json:"eventId"`
	PairID        string `json:"pairId,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	Rating        *int   `json:"rating,omitempty"`
	TargetEventID string `json:"targetEventId,omitempty"`
	UserID        string `json:"userId"`
	SessionID     string `json:"sessionId"`
}

// NewRecord creates a record stamped with the current time in milliseconds.
func NewRecord(role Role, eventID, content string) LogRecord {
	return LogRecord{
		Role:      role,
		EventID:   eventID,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (r LogRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(RoleUser, RoleAssistant, RoleSystem, RoleFeedback)),
		validation.Field(&r.EventID, validation.Required),
		validation.Field(&r.Rating, validation.When(r.Role == RoleFeedback, validation.NotNil)),
		validation.Field(&r.TargetEventID, validation.When(r.Role == RoleFeedback, validation.Required)),
	)
}

func (r LogRecord) isBlank() bool { return strings.TrimSpace(r.Content) == "" }

type Identity struct {
	UserID    string
	SessionID string
}

func (i Identity) Known() bool { return i.UserID != "" && i.SessionID != "" }

func (i Identity) stamp(record LogRecord) LogRecord {
	if record.UserID == "" || record.UserID == UnknownIdentity {
		record.UserID = orUnknown(i.UserID)
	}
	if record.SessionID == "" || record.SessionID == UnknownIdentity {
		record.SessionID = orUnknown(i.SessionID)
	}
	return record
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownIdentity
	}
	return s
}
