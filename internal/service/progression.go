package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"runquest/internal/model"
	"runquest/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("runquest/service")

// ProgressionService 闯关状态机，是修改 run 进度字段的唯一入口
type ProgressionService struct {
	db               *gorm.DB
	rng              Intner
	defaultTimeLimit int
	locks            *runLocker
	metrics          *observability.Metrics
	now              func() time.Time
}

func NewProgressionService(db *gorm.DB, rng Intner, defaultTimeLimit int, metrics *observability.Metrics) *ProgressionService {
	if defaultTimeLimit <= 0 {
		defaultTimeLimit = 60
	}
	return &ProgressionService{
		db:               db,
		rng:              rng,
		defaultTimeLimit: defaultTimeLimit,
		locks:            newRunLocker(),
		metrics:          metrics,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

type StartRunInput struct {
	UserID  string
	Caption *string
	// 为空时默认公开
	Public *bool
}

type OutcomeInput struct {
	Completed    bool
	SkippedWhole bool
	ProofURL     *string
	// 客户端看到的挑战 ID，非 0 时必须与当前挑战一致
	ExpectedChallengeID uint
}

// PendingChallenge 当前挑战快照，客户端据此恢复计时器
type PendingChallenge struct {
	ID           uint      `json:"id"`
	Tier         int       `json:"tier"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	TimeLimit    int       `json:"time_limit"`
	StartedAt    time.Time `json:"started_at"`
	ProofPending bool      `json:"proof_pending"`
}

type RunSnapshot struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Caption    *string           `json:"caption"`
	Public     bool              `json:"public"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at"`
	Finished   bool              `json:"finished"`
	SkipsUsed  int               `json:"skips_used"`
	Version    int               `json:"version"`
	Pending    *PendingChallenge `json:"pending"`
	ServerTime time.Time         `json:"server_time"`
}

type OutcomeResult struct {
	Step     model.RunStep     `json:"step"`
	Finished bool              `json:"finished"`
	Next     *PendingChallenge `json:"next"`
	Run      *RunSnapshot      `json:"run"`
}

// StartRun 创建 run 并从最低层级随机派发第一关
func (s *ProgressionService) StartRun(ctx context.Context, in StartRunInput) (*RunSnapshot, error) {
	ctx, span := tracer.Start(ctx, "ProgressionService.StartRun")
	defer span.End()

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	var snap *RunSnapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, ok, err := lowestTier(tx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCatalogEmpty
		}
		candidates, err := challengesInTier(tx, tier)
		if err != nil {
			return err
		}
		first, ok := PickChallenge(s.rng, candidates, 0)
		if !ok {
			return ErrCatalogEmpty
		}

		// 用户首次出现时自动创建
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.User{ID: userID}).Error; err != nil {
			return wrapStorage("创建用户失败", err)
		}

		public := true
		if in.Public != nil {
			public = *in.Public
		}
		now := s.now()
		run := model.Run{
			ID:        uuid.NewString(),
			CreatedAt: now,
			UserID:    userID,
			Caption:   in.Caption,
			Public:    public,
		}
		run.AssignPending(first, now, first.TimeLimit(s.defaultTimeLimit))
		if err := tx.Omit(clause.Associations).Create(&run).Error; err != nil {
			return wrapStorage("创建 run 失败", err)
		}

		snap = s.buildSnapshot(&run, first)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCatalogEmpty) {
			slog.ErrorContext(ctx, "关卡目录为空，无法开始 run", "user_id", userID)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("run.id", snap.ID))
	s.metrics.RunStarted()
	return snap, nil
}

// SubmitOutcome 记录当前挑战结果并推进：完成进入下一层，失败/跳过留在本层重抽。
// 历史追加与进度更新在同一事务内提交。
func (s *ProgressionService) SubmitOutcome(ctx context.Context, runID string, in OutcomeInput) (*OutcomeResult, error) {
	ctx, span := tracer.Start(ctx, "ProgressionService.SubmitOutcome")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Bool("outcome.completed", in.Completed),
		attribute.Bool("outcome.skipped", in.SkippedWhole),
	)

	if in.Completed && in.SkippedWhole {
		return nil, ErrInvalidOutcome
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	// 当前挑战已失效时先修复；客户端提交的是旧挑战，需刷新后重新作答
	repaired, err := s.repairIfBroken(ctx, runID)
	if err != nil {
		return nil, err
	}
	if repaired != nil {
		if repaired.Finished {
			return nil, ErrRunAlreadyFinished
		}
		return nil, ErrStaleOutcome
	}

	var result OutcomeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := loadRun(tx, runID)
		if err != nil {
			return err
		}
		if run.Finished() {
			return ErrRunAlreadyFinished
		}
		if run.PendingChallengeID == nil {
			return ErrNoPendingChallenge
		}
		if in.ExpectedChallengeID != 0 && in.ExpectedChallengeID != *run.PendingChallengeID {
			return ErrStaleOutcome
		}

		current, err := getChallenge(tx, *run.PendingChallengeID)
		if err != nil {
			return err
		}

		now := s.now()
		step := model.RunStep{
			RunID:        run.ID,
			ChallengeID:  current.ID,
			Completed:    in.Completed,
			SkippedWhole: in.SkippedWhole,
			ProofURL:     in.ProofURL,
			CompletedAt:  now,
		}
		if err := tx.Omit(clause.Associations).Create(&step).Error; err != nil {
			return wrapStorage("写入历史失败", err)
		}

		if in.SkippedWhole {
			run.SkipsUsed++
		}

		targetTier, exclude := current.Tier, current.ID
		if in.Completed {
			targetTier, exclude = current.Tier+1, 0
		}
		candidates, err := challengesInTier(tx, targetTier)
		if err != nil {
			return err
		}

		next, ok := PickChallenge(s.rng, candidates, exclude)
		if ok {
			run.AssignPending(next, now, next.TimeLimit(s.defaultTimeLimit))
		} else {
			run.FinishedAt = &now
			run.ClearPending()
		}
		if err := saveProgress(tx, run); err != nil {
			return err
		}

		result = OutcomeResult{
			Step:     step,
			Finished: run.Finished(),
			Run:      s.buildSnapshot(run, next),
		}
		result.Next = result.Run.Pending
		return nil
	})
	if err != nil {
		s.logConsistency(ctx, runID, err)
		return nil, err
	}

	s.metrics.Outcome(outcomeLabel(in))
	if result.Finished {
		s.metrics.RunFinished("exhausted")
	}
	return &result, nil
}

// SetProofPending 标记客户端是否处于提交证明页面，不影响推进逻辑
func (s *ProgressionService) SetProofPending(ctx context.Context, runID string, flag bool) (*RunSnapshot, error) {
	unlock := s.locks.Lock(runID)
	defer unlock()

	// 标记作用于修复后重新派发的挑战
	if _, err := s.repairIfBroken(ctx, runID); err != nil {
		return nil, err
	}

	var snap *RunSnapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := loadRun(tx, runID)
		if err != nil {
			return err
		}
		if run.Finished() {
			return ErrRunAlreadyFinished
		}
		if run.PendingChallengeID == nil {
			return ErrNoPendingChallenge
		}
		current, err := getChallenge(tx, *run.PendingChallengeID)
		if err != nil {
			return err
		}

		run.ProofPending = flag
		if err := saveProgress(tx, run); err != nil {
			return err
		}
		snap = s.buildSnapshot(run, current)
		return nil
	})
	if err != nil {
		s.logConsistency(ctx, runID, err)
		return nil, err
	}
	return snap, nil
}

// ForceFinish 用户主动放弃；对已结束的 run 重复调用直接返回当前状态
func (s *ProgressionService) ForceFinish(ctx context.Context, runID string) (*RunSnapshot, error) {
	unlock := s.locks.Lock(runID)
	defer unlock()

	var (
		snap     *RunSnapshot
		finished bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := loadRun(tx, runID)
		if err != nil {
			return err
		}
		if run.Finished() && run.Consistent() {
			snap = s.buildSnapshot(run, nil)
			return nil
		}

		if !run.Finished() {
			now := s.now()
			run.FinishedAt = &now
			finished = true
		}
		run.ClearPending()
		if err := saveProgress(tx, run); err != nil {
			return err
		}
		snap = s.buildSnapshot(run, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if finished {
		s.metrics.RunFinished("abandoned")
	}
	return snap, nil
}

func loadRun(tx *gorm.DB, runID string) (*model.Run, error) {
	var run model.Run
	if err := tx.Where("id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, wrapStorage("查询 run 失败", err)
	}
	return &run, nil
}

// saveProgress 按版本号条件更新，版本不匹配说明有其他写入者抢先
func saveProgress(tx *gorm.DB, run *model.Run) error {
	res := tx.Model(&model.Run{}).
		Where("id = ? AND version = ?", run.ID, run.Version).
		Updates(map[string]interface{}{
			"finished_at":          run.FinishedAt,
			"pending_challenge_id": run.PendingChallengeID,
			"pending_started_at":   run.PendingStartedAt,
			"pending_time_limit":   run.PendingTimeLimit,
			"proof_pending":        run.ProofPending,
			"skips_used":           run.SkipsUsed,
			"version":              run.Version + 1,
		})
	if res.Error != nil {
		return wrapStorage("更新 run 失败", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleOutcome
	}
	run.Version++
	return nil
}

func (s *ProgressionService) buildSnapshot(run *model.Run, pending *model.Challenge) *RunSnapshot {
	snap := &RunSnapshot{
		ID:         run.ID,
		UserID:     run.UserID,
		Caption:    run.Caption,
		Public:     run.Public,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
		Finished:   run.Finished(),
		SkipsUsed:  run.SkipsUsed,
		Version:    run.Version,
		ServerTime: s.now(),
	}
	if !run.Finished() && pending != nil && run.PendingStartedAt != nil && run.PendingTimeLimit != nil {
		snap.Pending = &PendingChallenge{
			ID:           pending.ID,
			Tier:         pending.Tier,
			Title:        pending.Title,
			Description:  pending.Description,
			TimeLimit:    *run.PendingTimeLimit,
			StartedAt:    *run.PendingStartedAt,
			ProofPending: run.ProofPending,
		}
	}
	return snap
}

// logConsistency 一致性错误必须留痕，不能静默
func (s *ProgressionService) logConsistency(ctx context.Context, runID string, err error) {
	switch {
	case errors.Is(err, ErrNoPendingChallenge), errors.Is(err, ErrChallengeMissing):
		slog.ErrorContext(ctx, "run 状态不一致", "run_id", runID, "err", err)
	case errors.Is(err, ErrStorageUnavailable):
		slog.ErrorContext(ctx, "存储失败，操作已回滚", "run_id", runID, "err", err)
	}
}

func outcomeLabel(in OutcomeInput) string {
	switch {
	case in.Completed:
		return "completed"
	case in.SkippedWhole:
		return "skipped"
	default:
		return "failed"
	}
}
