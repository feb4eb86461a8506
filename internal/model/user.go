package model

import "time"

// User 首次引用时自动创建（按 ID 幂等 upsert）
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Username *string `gorm:"type:varchar(64);uniqueIndex" json:"username"`
}
