package model

import "time"

// Run 一次闯关流程。活跃时必有 pending 挑战，结束后 pending 字段全部清空
type Run struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID  string  `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Caption *string `gorm:"type:text" json:"caption"`
	Public  bool    `gorm:"not null" json:"public"`

	// 非空即已结束
	FinishedAt *time.Time `json:"finished_at"`

	// 当前挑战；关卡被删除时置空，读取时由修复逻辑重新派发
	PendingChallengeID *uint      `gorm:"index" json:"pending_challenge_id"`
	PendingStartedAt   *time.Time `json:"pending_started_at"`
	// 派发时锁定的时限（秒），之后目录改默认值也不影响本次
	PendingTimeLimit *int `json:"pending_time_limit"`
	// 客户端是否停留在“提交证明”页（仅用于刷新恢复）
	ProofPending bool `gorm:"default:false" json:"proof_pending"`
	SkipsUsed    int  `gorm:"not null;default:0" json:"skips_used"`

	// 乐观锁版本号，每次推进 +1
	Version int `gorm:"not null;default:0" json:"version"`

	User             User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	PendingChallenge *Challenge `gorm:"foreignKey:PendingChallengeID;constraint:OnDelete:SET NULL" json:"-"`
	Steps            []RunStep  `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"-"`
}

func (r *Run) Finished() bool {
	return r.FinishedAt != nil
}

// ClearPending 清空所有 pending 字段
func (r *Run) ClearPending() {
	r.PendingChallengeID = nil
	r.PendingStartedAt = nil
	r.PendingTimeLimit = nil
	r.ProofPending = false
}

// AssignPending 派发新挑战并重置计时
func (r *Run) AssignPending(c *Challenge, now time.Time, timeLimit int) {
	id := c.ID
	started := now
	limit := timeLimit
	r.PendingChallengeID = &id
	r.PendingStartedAt = &started
	r.PendingTimeLimit = &limit
	r.ProofPending = false
}

// Consistent 检查不变量：未结束 <=> 有 pending 挑战
func (r *Run) Consistent() bool {
	if r.Finished() {
		return r.PendingChallengeID == nil && r.PendingStartedAt == nil && r.PendingTimeLimit == nil && !r.ProofPending
	}
	return r.PendingChallengeID != nil && r.PendingStartedAt != nil && r.PendingTimeLimit != nil
}
