package model

import "time"

// Challenge 关卡目录中的一道挑战，运行期只读
type Challenge struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 进阶层级，下一层 = 当前层 + 1
	Tier int `gorm:"not null;default:1;index" json:"tier"`

	Title       string  `gorm:"type:varchar(255);not null" json:"title"`
	Description *string `gorm:"type:text" json:"description"`

	// 时限（秒），为空时使用默认值
	SecondsLimit *int `json:"seconds_limit"`
}

// TimeLimit 返回有效时限：关卡自带时限优先，否则取默认值
func (c *Challenge) TimeLimit(defaultSeconds int) int {
	if c.SecondsLimit != nil && *c.SecondsLimit > 0 {
		return *c.SecondsLimit
	}
	return defaultSeconds
}
