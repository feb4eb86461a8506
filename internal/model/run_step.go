package model

import "time"

// RunStep 闯关历史，只追加不修改；按 id 顺序还原完整路径
type RunStep struct {
	ID uint `gorm:"primarykey" json:"id"`

	RunID       string `gorm:"type:varchar(36);not null;index" json:"run_id"`
	ChallengeID uint   `gorm:"not null;index" json:"challenge_id"`

	Completed bool `gorm:"default:false" json:"completed"`
	// 跳过或超时均记为 skipped_whole=true, completed=false
	SkippedWhole bool    `gorm:"default:false" json:"skipped_whole"`
	ProofURL     *string `gorm:"type:text" json:"proof_url"`

	CompletedAt time.Time `gorm:"not null" json:"completed_at"`

	Challenge Challenge `gorm:"foreignKey:ChallengeID;constraint:OnDelete:CASCADE" json:"-"`
}
