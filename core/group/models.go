package group

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examtrack/core"
)

type Group struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	AdminID       string     `json:"admin_id"`
	MemberIDs     []string   `json:"member_ids"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessage   string     `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// LastActivity is the time of the last message, or the creation time of a silent group.
func (g Group) LastActivity() time.Time {
	if g.LastMessageAt != nil {
		return *g.LastMessageAt
	}
	return g.CreatedAt
}

type NewGroup struct {
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"max=150"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	ng.Description = core.CleanString(ng.Description)
	return validate.Struct(ng)
}

type Message struct {
	ID         string    `json:"id" bson:"_id"`
	GroupID    string    `json:"group_id" bson:"group_id"`
	SenderID   string    `json:"sender_id" bson:"sender_id"`
	SenderName string    `json:"sender_name" bson:"sender_name"`
	Text       string    `json:"text" bson:"text"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

type NewMessage struct {
	Text string `json:"text" validate:"required,max=2000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Text = core.CleanString(nm.Text)
	return validate.Struct(nm)
}

// MessageQuery pages through a group's messages, oldest first, ordered by (CreatedAt, ID).
// The cursor is the CreatedAt and ID of the last message already seen:
// without After, every message created at Since is skipped.
type MessageQuery struct {
	Since time.Time `query:"since"` // zero: from the first message
	After string    `query:"after"` // message ID
	Limit int       `query:"limit"`
}
