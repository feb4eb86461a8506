package service

import (
	"context"
	"math"
	"time"

	"runquest/internal/model"

	"gorm.io/gorm"
)

type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

// GlobalStats 全站汇总；完成率只针对已提交的挑战
type GlobalStats struct {
	Users          int64       `json:"users"`
	Runs           int64       `json:"runs"`
	ActiveRuns     int64       `json:"active_runs"`
	FinishedRuns   int64       `json:"finished_runs"`
	Steps          int         `json:"steps"`
	Completed      int         `json:"completed"`
	Skipped        int         `json:"skipped"`
	Failed         int         `json:"failed"`
	CompletionRate float64     `json:"completion_rate"`
	CI95Low        float64     `json:"ci95_low"`
	CI95High       float64     `json:"ci95_high"`
	Tiers          []TierStats `json:"tiers"`
	GeneratedAt    time.Time   `json:"generated_at"`
}

// TierStats 单层统计；PValueVsFirst 为与最低层完成率的双比例检验
type TierStats struct {
	Tier           int     `json:"tier"`
	Attempts       int     `json:"attempts"`
	Completed      int     `json:"completed"`
	Skipped        int     `json:"skipped"`
	CompletionRate float64 `json:"completion_rate"`
	CI95Low        float64 `json:"ci95_low"`
	CI95High       float64 `json:"ci95_high"`
	PValueVsFirst  float64 `json:"p_value_vs_first"`
	ZVsFirst       float64 `json:"z_vs_first"`
}

type tierRow struct {
	Tier      int
	Attempts  int
	Completed int
	Skipped   int
}

func (s *StatsService) ActiveRuns(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Run{}).Where("finished_at IS NULL").Count(&n).Error; err != nil {
		return 0, wrapStorage("统计活跃 run 失败", err)
	}
	return n, nil
}

func (s *StatsService) Compute(ctx context.Context) (*GlobalStats, error) {
	db := s.db.WithContext(ctx)
	out := &GlobalStats{GeneratedAt: time.Now().UTC(), Tiers: []TierStats{}}

	if err := db.Model(&model.User{}).Count(&out.Users).Error; err != nil {
		return nil, wrapStorage("统计用户失败", err)
	}
	if err := db.Model(&model.Run{}).Count(&out.Runs).Error; err != nil {
		return nil, wrapStorage("统计 run 失败", err)
	}
	active, err := s.ActiveRuns(ctx)
	if err != nil {
		return nil, err
	}
	out.ActiveRuns = active
	out.FinishedRuns = out.Runs - active

	var rows []tierRow
	err = db.Model(&model.RunStep{}).
		Select("challenges.tier AS tier, COUNT(*) AS attempts, " +
			"SUM(CASE WHEN run_steps.completed THEN 1 ELSE 0 END) AS completed, " +
			"SUM(CASE WHEN run_steps.skipped_whole THEN 1 ELSE 0 END) AS skipped").
		Joins("JOIN challenges ON challenges.id = run_steps.challenge_id").
		Group("challenges.tier").
		Order("challenges.tier ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStorage("按层统计失败", err)
	}

	for _, r := range rows {
		out.Steps += r.Attempts
		out.Completed += r.Completed
		out.Skipped += r.Skipped
	}
	out.Failed = out.Steps - out.Completed - out.Skipped
	if out.Steps > 0 {
		out.CompletionRate = float64(out.Completed) / float64(out.Steps)
		out.CI95Low, out.CI95High = wilsonCI(out.Completed, out.Steps, 1.96)
	}
	out.Tiers = tierStats(rows)
	return out, nil
}

func tierStats(rows []tierRow) []TierStats {
	out := make([]TierStats, 0, len(rows))
	for i, r := range rows {
		ts := TierStats{
			Tier:      r.Tier,
			Attempts:  r.Attempts,
			Completed: r.Completed,
			Skipped:   r.Skipped,
			// 最低层自比无意义
			PValueVsFirst: 1,
		}
		if r.Attempts > 0 {
			ts.CompletionRate = float64(r.Completed) / float64(r.Attempts)
			ts.CI95Low, ts.CI95High = wilsonCI(r.Completed, r.Attempts, 1.96)
		}
		if i > 0 {
			first := rows[0]
			ts.PValueVsFirst, ts.ZVsFirst = twoPropZTest(first.Completed, first.Attempts, r.Completed, r.Attempts)
		}
		out = append(out, ts)
	}
	return out
}

// Wilson score interval for proportion
func wilsonCI(k int, n int, z float64) (float64, float64) {
	if n == 0 {
		return 0, 0
	}
	p := float64(k) / float64(n)
	zz := z * z
	den := 1 + zz/float64(n)
	center := (p + zz/(2*float64(n))) / den
	half := (z / den) * math.Sqrt((p*(1-p)+zz/(4*float64(n)))/float64(n))
	low := math.Max(0, center-half)
	high := math.Min(1, center+half)
	return low, high
}

// two-proportion z-test (two-sided)
func twoPropZTest(x1, n1, x2, n2 int) (pValue float64, z float64) {
	if n1 == 0 || n2 == 0 {
		return 1, 0
	}
	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	p := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(p * (1 - p) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1, 0
	}
	z = (p2 - p1) / se
	pValue = 2 * (1 - normCDF(math.Abs(z)))
	return pValue, z
}

// standard normal CDF approximation via erf
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
