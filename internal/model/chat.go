package model

import "time"

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session 聊天会话
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	DeepThink bool      `gorm:"not null;default:false" json:"deep_think"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index:idx_sessions_updated_at,sort:desc" json:"updated_at"`
	Messages  []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Message 聊天消息，创建后不再修改
type Message struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"size:36;not null;index:idx_messages_session_id,priority:1" json:"-"`
	Role      string    `gorm:"size:20;not null;check:chk_messages_role,role IN ('user','assistant')" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_session_id,priority:2" json:"created_at"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}

func (Message) TableName() string {
	return "messages"
}

// ValidRole 是否为可持久化的角色
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
