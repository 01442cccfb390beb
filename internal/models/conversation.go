package models

import (
	"time"

	"gorm.io/datatypes"
)

type ConversationLog struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CallID    string         `gorm:"column:call_id;type:uuid;uniqueIndex:idx_conversation_call_seq,priority:1" json:"call_id"`
	Seq       int            `gorm:"column:seq;type:integer;uniqueIndex:idx_conversation_call_seq,priority:2" json:"seq"`
	Role      string         `gorm:"column:role;type:text" json:"role"` // "caller" | "agent"
	Content   string         `gorm:"column:content;type:text" json:"content"`
	Timestamp time.Time      `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (ConversationLog) TableName() string { return "conversation_logs" }
