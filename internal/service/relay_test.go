package service

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/internal/tieba"
)

type relayFixture struct {
	db         *gorm.DB
	relay      *Relay
	relayRepo  repository.RelayTaskRepository
	threadRepo repository.ThreadRepository
	client     *fakeClient
	out        *bytes.Buffer
}

// 建一个「已标注源帖 + 同周合集帖」的最小场景
func newRelayFixture(t *testing.T, authenticated bool) *relayFixture {
	t.Helper()
	db := newTestDB(t)
	threadRepo := repository.NewThreadRepository(db)
	relayRepo := repository.NewRelayTaskRepository(db)
	imageRepo := repository.NewImageTaskRepository(db)
	client := &fakeClient{}

	var accounts []tieba.Account
	if authenticated {
		accounts = append(accounts, tieba.Account{BDUSS: "test-bduss", Label: "test"})
	}
	pool := tieba.NewAccountPool(accounts)

	r := NewRelay(threadRepo, relayRepo, imageRepo, client, pool, time.UTC)
	out := &bytes.Buffer{}
	r.Out = out

	srcCT := time.Now().Add(-24 * time.Hour).Unix()
	y, w := time.Unix(srcCT, 0).UTC().ISOWeek()

	cat := "social"
	require.NoError(t, db.Create(&model.Thread{
		Tid: 1, Fname: "testbar", Title: "求问新区怎么开荒", AuthorName: "张三", AuthorID: 42,
		CreateTime: srcCT, Text: "开荒求助正文", Category: &cat,
		ProcessStatus: model.ProcessProcessed, ThreadRole: model.RoleNormal,
	}).Error)
	require.NoError(t, db.Create(&model.Thread{
		Tid: 9, Fname: "testbar", Title: fmt.Sprintf("【周报】%d年第%d周 社交合集", y, w),
		CreateTime: srcCT + 3600, Category: &cat,
		ProcessStatus: model.ProcessNew, ThreadRole: model.RoleCollection,
		CollectionYear: &y, CollectionWeek: &w,
	}).Error)

	return &relayFixture{db: db, relay: r, relayRepo: relayRepo, threadRepo: threadRepo, client: client, out: out}
}

func relayParams() RelayParams {
	return RelayParams{
		Forum: "testbar", Mode: "link",
		MaxPosts: 5, MinIntervalSeconds: 0,
		MaxTextChars: 300, MaxImages: 3, LookbackDays: 21,
	}
}

func TestRelayDryRunReleasesTasks(t *testing.T) {
	f := newRelayFixture(t, false) // dry-run 无需登录账号
	p := relayParams()
	p.DryRun = true

	res, err := f.relay.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Enqueued)
	assert.Equal(t, 1, res.Claimed)
	assert.Equal(t, 1, res.Released)
	assert.Equal(t, 0, res.Posted)
	assert.Empty(t, f.client.posts)

	assert.Contains(t, f.out.String(), "【新帖收录】求问新区怎么开荒")
	assert.Contains(t, f.out.String(), "tid=9")

	// 整批退回 PENDING，下一轮可以真发
	counts, err := f.relayRepo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.RelayStatusPending])
}

func TestRelayPostSuccess(t *testing.T) {
	f := newRelayFixture(t, true)

	res, err := f.relay.Run(context.Background(), relayParams())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Enqueued)
	assert.Equal(t, 1, res.Posted)
	require.Len(t, f.client.posts, 1)
	assert.Equal(t, "testbar", f.client.posts[0].Forum)
	assert.Equal(t, int64(9), f.client.posts[0].Tid)
	assert.Contains(t, f.client.posts[0].Content, "求问新区怎么开荒")

	counts, err := f.relayRepo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.RelayStatusDone])

	// 再跑一轮：任务已终态，不重复入队也不重复发
	res, err = f.relay.Run(context.Background(), relayParams())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Enqueued)
	assert.Equal(t, 0, res.Claimed)
	assert.Len(t, f.client.posts, 1)
}

func TestRelayPostRejected(t *testing.T) {
	f := newRelayFixture(t, true)
	f.client.postFn = func(forum string, tid int64, content string) (*tieba.PostResult, error) {
		return &tieba.PostResult{OK: false, Code: 220034, Msg: "操作太频繁"}, nil
	}

	res, err := f.relay.Run(context.Background(), relayParams())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	counts, err := f.relayRepo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.RelayStatusError])

	// ERROR 可显式重试
	p := relayParams()
	p.IncludeError = true
	res, err = f.relay.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claimed)
}

func TestRelayPostTimeoutBecomesUnknown(t *testing.T) {
	f := newRelayFixture(t, true)
	f.client.postFn = func(forum string, tid int64, content string) (*tieba.PostResult, error) {
		return nil, fmt.Errorf("add post: %w", tieba.ErrOutcomeUnknown)
	}

	res, err := f.relay.Run(context.Background(), relayParams())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unknown)

	counts, err := f.relayRepo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.RelayStatusUnknown])

	// UNKNOWN 永不自动重领，include_error 也不行
	p := relayParams()
	p.IncludeError = true
	res, err = f.relay.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)
	assert.Len(t, f.client.posts, 1)
}

func TestRelayMissingTargetIsNotAnError(t *testing.T) {
	f := newRelayFixture(t, true)
	// 删掉合集帖：候选没有归宿，留待下一轮
	require.NoError(t, f.db.Delete(&model.Thread{}, "tid = ?", 9).Error)

	res, err := f.relay.Run(context.Background(), relayParams())
	require.NoError(t, err)
	assert.Equal(t, 1, res.MissingTarget)
	assert.Equal(t, 0, res.Enqueued)
	assert.Empty(t, f.client.posts)
}

func TestRelayRunValidation(t *testing.T) {
	f := newRelayFixture(t, false)

	p := relayParams()
	p.Mode = "broadcast"
	_, err := f.relay.Run(context.Background(), p)
	assert.Error(t, err)

	// 匿名账号池不能真发
	_, err = f.relay.Run(context.Background(), relayParams())
	assert.Error(t, err)
}

func TestRelayRecoversStuckTask(t *testing.T) {
	f := newRelayFixture(t, true)

	// 模拟上一进程在 POSTING 中崩溃
	_, err := f.relayRepo.Insert(context.Background(), &model.RelayTask{
		SourceTid: 1, TargetTid: 9, TargetForum: "testbar", Category: "social",
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.RelayTask{}).
		Where("source_tid = ?", 1).
		Update("status", model.RelayStatusPosting).Error)

	res, err := f.relay.Run(context.Background(), relayParams())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.StuckReset)
	assert.Equal(t, 1, res.Posted)
}
