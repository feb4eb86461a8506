package service

import (
	"strings"
	"testing"

	"runquest/internal/db"
	"runquest/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testDB 每个测试独立的内存库
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.OpenMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

// seedTiers tiers[i] 为第 i+1 层的关卡标题
func seedTiers(t *testing.T, gdb *gorm.DB, tiers ...[]string) []model.Challenge {
	t.Helper()
	var out []model.Challenge
	for i, titles := range tiers {
		for _, title := range titles {
			out = append(out, model.Challenge{Tier: i + 1, Title: title})
		}
	}
	if len(out) == 0 {
		return nil
	}
	require.NoError(t, gdb.Create(&out).Error)
	return out
}

// seqRand 依次返回预设值（取模），用于确定性抽取
type seqRand struct {
	vals []int
	i    int
}

func (r *seqRand) Intn(n int) int {
	if len(r.vals) == 0 {
		return 0
	}
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v % n
}

func newEngine(gdb *gorm.DB) *ProgressionService {
	return NewProgressionService(gdb, NewLockedRand(42), 60, nil)
}

func loadRunRow(t *testing.T, gdb *gorm.DB, id string) model.Run {
	t.Helper()
	var run model.Run
	require.NoError(t, gdb.First(&run, "id = ?", id).Error)
	return run
}

func countSteps(t *testing.T, gdb *gorm.DB, runID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&model.RunStep{}).Where("run_id = ?", runID).Count(&n).Error)
	return n
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
