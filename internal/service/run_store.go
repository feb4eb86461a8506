package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"runquest/internal/model"

	"gorm.io/gorm"
)

// HistoryEntry 一条闯关记录，附带关卡信息便于前端展示
type HistoryEntry struct {
	ID           uint      `json:"id"`
	ChallengeID  uint      `json:"challenge_id"`
	Tier         int       `json:"tier"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	Completed    bool      `json:"completed"`
	SkippedWhole bool      `json:"skipped_whole"`
	ProofURL     *string   `json:"proof_url"`
	CompletedAt  time.Time `json:"completed_at"`
}

// RunSummary 用户 run 列表项
type RunSummary struct {
	ID             string     `json:"id"`
	Caption        *string    `json:"caption"`
	Public         bool       `json:"public"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Finished       bool       `json:"finished"`
	SkipsUsed      int        `json:"skips_used"`
	StepsTotal     int        `json:"steps_total"`
	StepsCompleted int        `json:"steps_completed"`
	StepsSkipped   int        `json:"steps_skipped"`
}

// GetRun 读取 run 快照；发现不变量被破坏时就地修复
func (s *ProgressionService) GetRun(ctx context.Context, runID string) (*RunSnapshot, error) {
	ctx, span := tracer.Start(ctx, "ProgressionService.GetRun")
	defer span.End()

	run, err := loadRun(s.db.WithContext(ctx), runID)
	if err != nil {
		return nil, err
	}

	var pending *model.Challenge
	if run.Consistent() {
		if run.Finished() {
			return s.buildSnapshot(run, nil), nil
		}
		pending, err = getChallenge(s.db.WithContext(ctx), *run.PendingChallengeID)
		if err == nil {
			return s.buildSnapshot(run, pending), nil
		}
		if !errors.Is(err, ErrChallengeMissing) {
			return nil, err
		}
	}

	return s.repair(ctx, runID)
}

// repair 在锁和事务内重新检查并修复：
// 已结束则清空残留 pending；未结束则按最后一条历史重新派发，无可派发时结束 run
func (s *ProgressionService) repair(ctx context.Context, runID string) (*RunSnapshot, error) {
	unlock := s.locks.Lock(runID)
	defer unlock()
	return s.repairLocked(ctx, runID)
}

// repairIfBroken 写操作前的检查，调用方须已持有 run 锁；无需修复时返回 nil
func (s *ProgressionService) repairIfBroken(ctx context.Context, runID string) (*RunSnapshot, error) {
	db := s.db.WithContext(ctx)
	run, err := loadRun(db, runID)
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return nil, nil
	}
	if run.Consistent() {
		_, err := getChallenge(db, *run.PendingChallengeID)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, ErrChallengeMissing) {
			return nil, err
		}
	}
	return s.repairLocked(ctx, runID)
}

func (s *ProgressionService) repairLocked(ctx context.Context, runID string) (*RunSnapshot, error) {
	var (
		snap     *RunSnapshot
		repaired bool
		finished bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := loadRun(tx, runID)
		if err != nil {
			return err
		}

		if run.Finished() {
			if !run.Consistent() {
				run.ClearPending()
				if err := saveProgress(tx, run); err != nil {
					return err
				}
				repaired = true
			}
			snap = s.buildSnapshot(run, nil)
			return nil
		}

		if run.PendingChallengeID != nil {
			current, err := getChallenge(tx, *run.PendingChallengeID)
			switch {
			case err == nil && run.Consistent():
				// 其他请求已修复
				snap = s.buildSnapshot(run, current)
				return nil
			case err != nil && !errors.Is(err, ErrChallengeMissing):
				return err
			}
		}

		next, err := s.rederive(tx, run.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if next != nil {
			run.AssignPending(next, now, next.TimeLimit(s.defaultTimeLimit))
		} else {
			run.FinishedAt = &now
			run.ClearPending()
			finished = true
		}
		if err := saveProgress(tx, run); err != nil {
			return err
		}
		repaired = true
		snap = s.buildSnapshot(run, next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if repaired {
		slog.WarnContext(ctx, "run 状态不一致，已修复", "run_id", runID, "finished", snap.Finished)
		s.metrics.RunRepaired()
	}
	if finished {
		s.metrics.RunFinished("repaired")
	}
	return snap, nil
}

// rederive 按最后一条历史推算下一关：完成则进入下一层，否则同层排除该关；无历史则从最低层开始
func (s *ProgressionService) rederive(tx *gorm.DB, runID string) (*model.Challenge, error) {
	var last model.RunStep
	err := tx.Preload("Challenge").Where("run_id = ?", runID).Order("id DESC").First(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		tier, ok, err := lowestTier(tx)
		if err != nil || !ok {
			return nil, err
		}
		candidates, err := challengesInTier(tx, tier)
		if err != nil {
			return nil, err
		}
		next, _ := PickChallenge(s.rng, candidates, 0)
		return next, nil
	case err != nil:
		return nil, wrapStorage("查询最后一条历史失败", err)
	}

	tier, exclude := last.Challenge.Tier, last.ChallengeID
	if last.Completed {
		tier, exclude = tier+1, 0
	}
	candidates, err := challengesInTier(tx, tier)
	if err != nil {
		return nil, err
	}
	next, _ := PickChallenge(s.rng, candidates, exclude)
	return next, nil
}

// History 按追加顺序返回完整闯关路径
func (s *ProgressionService) History(ctx context.Context, runID string) ([]HistoryEntry, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadRun(db, runID); err != nil {
		return nil, err
	}

	var steps []model.RunStep
	if err := db.Preload("Challenge").Where("run_id = ?", runID).Order("id ASC").Find(&steps).Error; err != nil {
		return nil, wrapStorage("查询历史失败", err)
	}

	entries := make([]HistoryEntry, 0, len(steps))
	for _, st := range steps {
		entries = append(entries, HistoryEntry{
			ID:           st.ID,
			ChallengeID:  st.ChallengeID,
			Tier:         st.Challenge.Tier,
			Title:        st.Challenge.Title,
			Description:  st.Challenge.Description,
			Completed:    st.Completed,
			SkippedWhole: st.SkippedWhole,
			ProofURL:     st.ProofURL,
			CompletedAt:  st.CompletedAt,
		})
	}
	return entries, nil
}

type stepCounts struct {
	RunID     string
	Total     int
	Completed int
	Skipped   int
}

// ListUserRuns 用户的全部 run，最新在前
func (s *ProgressionService) ListUserRuns(ctx context.Context, userID string) ([]RunSummary, error) {
	db := s.db.WithContext(ctx)

	var runs []model.Run
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&runs).Error; err != nil {
		return nil, wrapStorage("查询用户 run 失败", err)
	}
	out := make([]RunSummary, 0, len(runs))
	if len(runs) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	var counts []stepCounts
	err := db.Model(&model.RunStep{}).
		Select("run_id, COUNT(*) AS total, " +
			"SUM(CASE WHEN completed THEN 1 ELSE 0 END) AS completed, " +
			"SUM(CASE WHEN skipped_whole THEN 1 ELSE 0 END) AS skipped").
		Where("run_id IN ?", ids).
		Group("run_id").
		Scan(&counts).Error
	if err != nil {
		return nil, wrapStorage("统计历史失败", err)
	}
	byRun := make(map[string]stepCounts, len(counts))
	for _, c := range counts {
		byRun[c.RunID] = c
	}

	for _, r := range runs {
		c := byRun[r.ID]
		out = append(out, RunSummary{
			ID:             r.ID,
			Caption:        r.Caption,
			Public:         r.Public,
			CreatedAt:      r.CreatedAt,
			FinishedAt:     r.FinishedAt,
			Finished:       r.Finished(),
			SkipsUsed:      r.SkipsUsed,
			StepsTotal:     c.Total,
			StepsCompleted: c.Completed,
			StepsSkipped:   c.Skipped,
		})
	}
	return out, nil
}
