package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
)

func TestBackfillMarksCollections(t *testing.T) {
	db := newTestDB(t)
	threadRepo := repository.NewThreadRepository(db)
	now := time.Now().Unix()

	require.NoError(t, db.Create(&model.Thread{
		Tid: 1, Fname: "testbar", Title: "【周报】2026年第5周 社交合集", CreateTime: now - 86400,
		ProcessStatus: model.ProcessNew, ThreadRole: model.RoleNormal,
	}).Error)
	require.NoError(t, db.Create(&model.Thread{
		Tid: 2, Fname: "testbar", Title: "普通水帖", CreateTime: now - 86400,
		ProcessStatus: model.ProcessNew, ThreadRole: model.RoleNormal,
	}).Error)
	// 窗口外的漏网帖不扫
	require.NoError(t, db.Create(&model.Thread{
		Tid: 3, Fname: "testbar", Title: "【周报】2025年第1周 社交合集", CreateTime: now - 400*86400,
		ProcessStatus: model.ProcessNew, ThreadRole: model.RoleNormal,
	}).Error)

	b := NewBackfill(threadRepo, testRules)

	// 先 dry-run：报数但不落库
	res, err := b.Run(context.Background(), BackfillParams{Forum: "testbar", Days: 30, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Updated)

	th, err := threadRepo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.RoleNormal, th.ThreadRole)

	// 真跑
	res, err = b.Run(context.Background(), BackfillParams{Forum: "testbar", Days: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	th, err = threadRepo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCollection, th.ThreadRole)
	require.NotNil(t, th.Category)
	assert.Equal(t, "social", *th.Category)
	require.NotNil(t, th.CollectionYear)
	assert.Equal(t, 2026, *th.CollectionYear)
	require.NotNil(t, th.CollectionWeek)
	assert.Equal(t, 5, *th.CollectionWeek)
}
