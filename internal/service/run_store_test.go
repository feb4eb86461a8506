package service

import (
	"context"
	"testing"
	"time"

	"runquest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRun_ReturnsSnapshot(t *testing.T) {
	gdb := testDB(t)
	seedTiers(t, gdb, []string{"X"})
	eng := newEngine(gdb)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)

	got, err := eng.GetRun(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Pending.ID, got.Pending.ID)
	assert.Equal(t, "X", got.Pending.Title)
	assert.Equal(t, snap.Version, got.Version)
	assert.False(t, got.ServerTime.IsZero())

	_, err = eng.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// 当前关卡被删除（外键置空）后，读取时重新派发
func TestGetRun_RepairsDeletedPendingChallenge(t *testing.T) {
	gdb := testDB(t)
	cs := seedTiers(t, gdb, []string{"X", "Y"})
	eng := NewProgressionService(gdb, &seqRand{vals: []int{0}}, 60, nil)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, cs[0].ID, snap.Pending.ID)

	require.NoError(t, gdb.Delete(&model.Challenge{}, cs[0].ID).Error)
	row := loadRunRow(t, gdb, snap.ID)
	require.Nil(t, row.PendingChallengeID)
	require.False(t, row.Consistent())

	got, err := eng.GetRun(ctx, snap.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Pending)
	assert.Equal(t, cs[1].ID, got.Pending.ID)
	assert.Equal(t, snap.Version+1, got.Version)
	repairedRow := loadRunRow(t, gdb, snap.ID)
	assert.True(t, repairedRow.Consistent())
}

func TestGetRun_RepairsFromLastCompletedStep(t *testing.T) {
	gdb := testDB(t)
	cs := seedTiers(t, gdb, []string{"X"}, []string{"Y"}, []string{"Z"})
	eng := newEngine(gdb)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	_, err = eng.SubmitOutcome(ctx, snap.ID, OutcomeInput{Completed: true})
	require.NoError(t, err)

	// 模拟中途崩溃留下的无 pending 活跃 run
	require.NoError(t, gdb.Model(&model.Run{}).Where("id = ?", snap.ID).
		Updates(map[string]interface{}{"pending_challenge_id": nil, "pending_started_at": nil, "pending_time_limit": nil}).Error)

	got, err := eng.GetRun(ctx, snap.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Pending)
	assert.Equal(t, cs[1].ID, got.Pending.ID)
	assert.Equal(t, 2, got.Pending.Tier)
}

func TestGetRun_RepairFinishesWhenNothingLeft(t *testing.T) {
	gdb := testDB(t)
	cs := seedTiers(t, gdb, []string{"X"}, []string{"Y"})
	eng := newEngine(gdb)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	_, err = eng.SubmitOutcome(ctx, snap.ID, OutcomeInput{Completed: true})
	require.NoError(t, err)

	require.NoError(t, gdb.Delete(&model.Challenge{}, cs[1].ID).Error)

	got, err := eng.GetRun(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, got.Finished)
	assert.Nil(t, got.Pending)

	row := loadRunRow(t, gdb, snap.ID)
	assert.True(t, row.Consistent())
	assert.NotNil(t, row.FinishedAt)
}

func TestGetRun_ClearsLeftoverPendingOnFinishedRun(t *testing.T) {
	gdb := testDB(t)
	seedTiers(t, gdb, []string{"X"})
	eng := newEngine(gdb)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, gdb.Model(&model.Run{}).Where("id = ?", snap.ID).
		Updates(map[string]interface{}{"finished_at": time.Now().UTC(), "proof_pending": true}).Error)

	got, err := eng.GetRun(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, got.Finished)
	assert.Nil(t, got.Pending)

	row := loadRunRow(t, gdb, snap.ID)
	assert.True(t, row.Consistent())
	assert.Nil(t, row.PendingChallengeID)
	assert.False(t, row.ProofPending)
}

// 关卡被删除时，引用它的历史随之级联删除
func TestChallengeDeleteCascadesHistory(t *testing.T) {
	gdb := testDB(t)
	cs := seedTiers(t, gdb, []string{"X"}, []string{"Y"})
	eng := newEngine(gdb)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	_, err = eng.SubmitOutcome(ctx, snap.ID, OutcomeInput{Completed: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, countSteps(t, gdb, snap.ID))

	require.NoError(t, gdb.Delete(&model.Challenge{}, cs[0].ID).Error)
	assert.EqualValues(t, 0, countSteps(t, gdb, snap.ID))
}

// 当前关卡被删除后直接提交：先修复，再以过期提交拒绝，不写历史
func TestSubmitOutcome_RepairsDeletedPendingChallenge(t *testing.T) {
	gdb := testDB(t)
	cs := seedTiers(t, gdb, []string{"X", "Y"}, []string{"Z"})
	eng := NewProgressionService(gdb, &seqRand{vals: []int{0}}, 60, nil)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, cs[0].ID, snap.Pending.ID)
	require.NoError(t, gdb.Delete(&model.Challenge{}, cs[0].ID).Error)

	_, err = eng.SubmitOutcome(ctx, snap.ID, OutcomeInput{Completed: true, ExpectedChallengeID: cs[0].ID})
	require.ErrorIs(t, err, ErrStaleOutcome)
	assert.Equal(t, int64(0), countSteps(t, gdb, snap.ID))

	row := loadRunRow(t, gdb, snap.ID)
	assert.True(t, row.Consistent())
	require.NotNil(t, row.PendingChallengeID)
	assert.Equal(t, cs[1].ID, *row.PendingChallengeID)

	res, err := eng.SubmitOutcome(ctx, snap.ID, OutcomeInput{Completed: true, ExpectedChallengeID: cs[1].ID})
	require.NoError(t, err)
	require.NotNil(t, res.Next)
	assert.Equal(t, cs[2].ID, res.Next.ID)
}

// 修复时已无可派发关卡：run 结束，提交返回已结束
func TestSubmitOutcome_RepairFinishesRun(t *testing.T) {
	gdb := testDB(t)
	cs := seedTiers(t, gdb, []string{"X"})
	eng := newEngine(gdb)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, gdb.Delete(&model.Challenge{}, cs[0].ID).Error)

	_, err = eng.SubmitOutcome(ctx, snap.ID, OutcomeInput{SkippedWhole: true, ExpectedChallengeID: cs[0].ID})
	require.ErrorIs(t, err, ErrRunAlreadyFinished)

	row := loadRunRow(t, gdb, snap.ID)
	assert.True(t, row.Finished())
	assert.True(t, row.Consistent())
	assert.Equal(t, 0, row.SkipsUsed)
}

func TestSetProofPending_RepairsDeletedPendingChallenge(t *testing.T) {
	gdb := testDB(t)
	cs := seedTiers(t, gdb, []string{"X", "Y"})
	eng := NewProgressionService(gdb, &seqRand{vals: []int{0}}, 60, nil)
	ctx := context.Background()

	snap, err := eng.StartRun(ctx, StartRunInput{UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, gdb.Delete(&model.Challenge{}, cs[0].ID).Error)

	got, err := eng.SetProofPending(ctx, snap.ID, true)
	require.NoError(t, err)
	require.NotNil(t, got.Pending)
	assert.Equal(t, cs[1].ID, got.Pending.ID)
	assert.True(t, got.Pending.ProofPending)
}
