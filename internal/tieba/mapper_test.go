package tieba

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

func TestCanonicalImageURL(t *testing.T) {
	img := ThreadImage{Src: "s", OriginSrc: "o", BigSrc: "b"}
	assert.Equal(t, "b", img.CanonicalImageURL())

	img.BigSrc = ""
	assert.Equal(t, "o", img.CanonicalImageURL())

	img.OriginSrc = ""
	assert.Equal(t, "s", img.CanonicalImageURL())
}

func TestThreadToModelLeavesLabelsEmpty(t *testing.T) {
	item := ThreadItem{
		Tid: 1, Fname: "testbar", Title: "标题", Text: "正文",
		CreateTime: 1000,
		Images:     []ThreadImage{{Src: "https://img/s.jpg", Hash: "h1"}},
	}
	row := ThreadToModel(item)

	assert.Equal(t, model.ProcessNew, row.ProcessStatus)
	assert.Equal(t, model.RoleNormal, row.ThreadRole)
	// 标注字段留空，upsert 才不会覆盖已有标注
	assert.Nil(t, row.Category)
	assert.Nil(t, row.TagsJSON)
	assert.Nil(t, row.CollectionYear)

	var payload struct {
		Text string `json:"text"`
		Imgs []struct {
			Src string `json:"src"`
		} `json:"imgs"`
	}
	require.NoError(t, json.Unmarshal([]byte(row.ContentsJSON), &payload))
	assert.Equal(t, "正文", payload.Text)
	require.Len(t, payload.Imgs, 1)
	assert.Equal(t, "https://img/s.jpg", payload.Imgs[0].Src)
}

func TestImageTasksFromThread(t *testing.T) {
	item := ThreadItem{
		Tid: 7,
		Images: []ThreadImage{
			{BigSrc: "https://img/big.jpg", Src: "https://img/s.jpg", Hash: "h1"},
			{}, // 无 URL 的条目丢弃
		},
	}
	tasks := ImageTasksFromThread(item)

	require.Len(t, tasks, 1)
	assert.Equal(t, int64(7), tasks[0].Tid)
	assert.Equal(t, "https://img/big.jpg", tasks[0].URL)
	assert.Equal(t, model.ImageStatusPending, tasks[0].Status)
}
