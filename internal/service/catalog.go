package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"runquest/internal/model"

	"gorm.io/gorm"
)

type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// Tier 同一层级的全部关卡
type Tier struct {
	Number     int               `json:"tier"`
	Challenges []model.Challenge `json:"challenges"`
}

// List 按层级、ID 排序返回全部关卡
func (s *CatalogService) List(ctx context.Context) ([]model.Challenge, error) {
	var challenges []model.Challenge
	if err := s.db.WithContext(ctx).Order("tier ASC, id ASC").Find(&challenges).Error; err != nil {
		return nil, wrapStorage("查询关卡失败", err)
	}
	return challenges, nil
}

// Tiers 按层级分组
func (s *CatalogService) Tiers(ctx context.Context) ([]Tier, error) {
	challenges, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	tiers := make([]Tier, 0)
	for _, c := range challenges {
		if n := len(tiers); n == 0 || tiers[n-1].Number != c.Tier {
			tiers = append(tiers, Tier{Number: c.Tier})
		}
		last := &tiers[len(tiers)-1]
		last.Challenges = append(last.Challenges, c)
	}
	return tiers, nil
}

// 以下函数接收 *gorm.DB，既可传连接也可传事务

func lowestTier(tx *gorm.DB) (int, bool, error) {
	var tier sql.NullInt64
	if err := tx.Model(&model.Challenge{}).Select("MIN(tier)").Scan(&tier).Error; err != nil {
		return 0, false, wrapStorage("查询最低层级失败", err)
	}
	if !tier.Valid {
		return 0, false, nil
	}
	return int(tier.Int64), true, nil
}

func challengesInTier(tx *gorm.DB, tier int) ([]model.Challenge, error) {
	var challenges []model.Challenge
	if err := tx.Where("tier = ?", tier).Order("id ASC").Find(&challenges).Error; err != nil {
		return nil, wrapStorage(fmt.Sprintf("查询第 %d 层关卡失败", tier), err)
	}
	return challenges, nil
}

func getChallenge(tx *gorm.DB, id uint) (*model.Challenge, error) {
	var c model.Challenge
	if err := tx.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: challenge_id=%d", ErrChallengeMissing, id)
		}
		return nil, wrapStorage("查询关卡失败", err)
	}
	return &c, nil
}
