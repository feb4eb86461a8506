package service

import (
	"context"
	"testing"

	"runquest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_TiersGrouped(t *testing.T) {
	gdb := testDB(t)
	require.NoError(t, gdb.Create(&[]model.Challenge{
		{Tier: 3, Title: "c"},
		{Tier: 1, Title: "a1"},
		{Tier: 1, Title: "a2"},
	}).Error)
	svc := NewCatalogService(gdb)
	ctx := context.Background()

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a1", all[0].Title)
	assert.Equal(t, "c", all[2].Title)

	tiers, err := svc.Tiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, 1, tiers[0].Number)
	assert.Len(t, tiers[0].Challenges, 2)
	// 层级可以不连续
	assert.Equal(t, 3, tiers[1].Number)
}

func TestCatalog_LowestTier(t *testing.T) {
	gdb := testDB(t)

	_, ok, err := lowestTier(gdb)
	require.NoError(t, err)
	assert.False(t, ok)

	seedTiers(t, gdb, nil, []string{"b"})
	tier, ok, err := lowestTier(gdb)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, tier)
}

func TestCatalog_GetChallengeMissing(t *testing.T) {
	gdb := testDB(t)

	_, err := getChallenge(gdb, 404)
	assert.ErrorIs(t, err, ErrChallengeMissing)
}

func TestStorageErrorsWrapCause(t *testing.T) {
	cause := assert.AnError
	err := wrapStorage("查询失败", cause)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, wrapStorage("noop", nil))
}
