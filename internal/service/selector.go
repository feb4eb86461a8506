package service

import (
	"math/rand"
	"sync"
	"time"

	"runquest/internal/model"
)

// Intner 随机源抽象，测试中可注入固定序列
type Intner interface {
	Intn(n int) int
}

// lockedRand math/rand.Rand 非并发安全，这里加锁后供多请求共用
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedRand seed 为 0 时按当前时间取种
func NewLockedRand(seed int64) Intner {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// PickChallenge 从候选中等概率抽取一个。
// excludeID 非 0 时尽量避开该关卡；若排除后无候选则回退为包含它（同层只有一关时会重复派发）。
// 候选为空返回 false，由调用方视为目录已到尽头。
func PickChallenge(rng Intner, candidates []model.Challenge, excludeID uint) (*model.Challenge, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	pool := candidates
	if excludeID != 0 {
		filtered := make([]model.Challenge, 0, len(candidates))
		for _, c := range candidates {
			if c.ID != excludeID {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			pool = filtered
		}
	}

	picked := pool[rng.Intn(len(pool))]
	return &picked, true
}
