package db

import (
	"fmt"
	"os"
	"strings"

	"runquest/internal/model"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// CatalogFile 关卡目录的种子文件格式
type CatalogFile struct {
	Challenges []CatalogEntry `yaml:"challenges"`
}

type CatalogEntry struct {
	Tier         int    `yaml:"tier"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	SecondsLimit int    `yaml:"seconds_limit"`
}

func LoadCatalogFile(path string) ([]model.Challenge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取关卡文件失败: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]model.Challenge, error) {
	var f CatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析关卡文件失败: %w", err)
	}

	var errs []string
	out := make([]model.Challenge, 0, len(f.Challenges))
	for i, e := range f.Challenges {
		title := strings.TrimSpace(e.Title)
		if title == "" {
			errs = append(errs, fmt.Sprintf("challenges[%d].title 必填", i))
		}
		if e.Tier < 1 {
			errs = append(errs, fmt.Sprintf("challenges[%d].tier 必须为正整数", i))
		}
		if e.SecondsLimit < 0 {
			errs = append(errs, fmt.Sprintf("challenges[%d].seconds_limit 不能为负", i))
		}

		c := model.Challenge{Tier: e.Tier, Title: title}
		if d := strings.TrimSpace(e.Description); d != "" {
			c.Description = &d
		}
		if e.SecondsLimit > 0 {
			limit := e.SecondsLimit
			c.SecondsLimit = &limit
		}
		out = append(out, c)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("关卡文件校验失败: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// SeedChallenges 目录已有数据时跳过，返回实际写入条数
func SeedChallenges(db *gorm.DB, challenges []model.Challenge) (int, error) {
	if len(challenges) == 0 {
		return 0, nil
	}

	var count int64
	if err := db.Model(&model.Challenge{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计关卡失败: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	if err := db.Create(&challenges).Error; err != nil {
		return 0, fmt.Errorf("写入关卡失败: %w", err)
	}
	return len(challenges), nil
}
