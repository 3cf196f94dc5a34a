package tieba

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client 贴吧协议客户端。实现只负责单次调用，
// 重试策略见 RetryingClient
type Client interface {
	// FetchThreadPage 按发帖时间序拉取一页主题帖
	FetchThreadPage(ctx context.Context, forum string, pn, rn int) (*ThreadPage, error)
	// AddPost 在目标帖下回复
	AddPost(ctx context.Context, forum string, tid int64, content string) (*PostResult, error)
}

const (
	frsURL  = "http://tiebac.baidu.com/c/f/frs/page"
	postURL = "http://tiebac.baidu.com/c/c/post/add"
	tbsURL  = "http://tieba.baidu.com/dc/common/tbs"

	clientVersion = "12.57.4.2"
	signSuffix    = "tiebaclient!!!"
)

// HTTPClient 走移动端 JSON 接口的瘦传输层
type HTTPClient struct {
	hc   *http.Client
	pool *AccountPool
}

func NewHTTPClient(pool *AccountPool) *HTTPClient {
	return &HTTPClient{
		hc:   &http.Client{Timeout: 45 * time.Second},
		pool: pool,
	}
}

// sign 移动端接口签名：按 key 排序拼接 k=v 后接盐取 MD5
func sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params.Get(k))
	}
	b.WriteString(signSuffix)
	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (c *HTTPClient) postForm(ctx context.Context, rawURL string, params url.Values, account Account) ([]byte, error) {
	params.Set("_client_version", clientVersion)
	if account.BDUSS != "" {
		params.Set("BDUSS", account.BDUSS)
	}
	params.Set("sign", sign(params))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if account.BDUSS != "" {
		req.Header.Set("Cookie", "BDUSS="+account.BDUSS)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, &ProtocolError{Code: resp.StatusCode, Msg: "server error", Retryable: true}
	}
	if resp.StatusCode >= 400 {
		return nil, &ProtocolError{Code: resp.StatusCode, Msg: "request rejected"}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// 接口侧的松散 JSON：数字经常以字符串出现，统一在边界处收敛为默认值
type frsResponse struct {
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Forum     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"forum"`
	Page struct {
		HasMore string `json:"has_more"`
	} `json:"page"`
	ThreadList []frsThread `json:"thread_list"`
}

type frsThread struct {
	ID     string `json:"id"`
	Fid    string `json:"fid"`
	Title  string `json:"title"`
	Author struct {
		ID       string `json:"id"`
		NameShow string `json:"name_show"`
		Name     string `json:"name"`
	} `json:"author"`
	FirstPostID string `json:"first_post_id"`
	CreateTime  string `json:"create_time"`
	LastTimeInt string `json:"last_time_int"`
	ReplyNum    string `json:"reply_num"`
	ViewNum     string `json:"view_num"`
	IsTop       string `json:"is_top"`
	IsGood      string `json:"is_good"`
	IsHelp      string `json:"is_frs_mask"`
	IsHide      string `json:"is_hide"`
	IsShare     string `json:"is_share_thread"`
	Agree       struct {
		AgreeNum string `json:"agree_num"`
	} `json:"agree"`
	Abstract []struct {
		Text string `json:"text"`
	} `json:"abstract"`
	Media []frsMedia `json:"media"`
}

type frsMedia struct {
	Type      string `json:"type"`
	SmallPic  string `json:"small_pic"`
	BigPic    string `json:"big_pic"`
	OriginPic string `json:"origin_pic"`
	Width     string `json:"width"`
	Height    string `json:"height"`
	Hash      string `json:"hash"`
}

func atoi64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func atoflag(s string) bool { return atoi64(s) != 0 }

func (c *HTTPClient) FetchThreadPage(ctx context.Context, forum string, pn, rn int) (*ThreadPage, error) {
	params := url.Values{}
	params.Set("kw", forum)
	params.Set("pn", strconv.Itoa(pn))
	params.Set("rn", strconv.Itoa(rn))
	params.Set("sort_type", "5") // 按发帖时间
	params.Set("is_good", "0")

	body, err := c.postForm(ctx, frsURL, params, c.pool.Next())
	if err != nil {
		return nil, err
	}

	var wire frsResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode frs response: %w", err)
	}
	if code := atoi64(wire.ErrorCode); code != 0 {
		return nil, &ProtocolError{Code: int(code), Msg: wire.ErrorMsg, Retryable: isServerBusy(int(code))}
	}

	page := &ThreadPage{HasMore: atoflag(wire.Page.HasMore)}
	for _, t := range wire.ThreadList {
		item := ThreadItem{
			Tid:        atoi64(t.ID),
			Fid:        atoi64(t.Fid),
			Fname:      wire.Forum.Name,
			Title:      t.Title,
			AuthorID:   atoi64(t.Author.ID),
			AuthorName: firstNonEmpty(t.Author.NameShow, t.Author.Name),
			Agree:      atoi64(t.Agree.AgreeNum),
			Pid:        atoi64(t.FirstPostID),
			CreateTime: atoi64(t.CreateTime),
			LastTime:   atoi64(t.LastTimeInt),
			ReplyNum:   atoi64(t.ReplyNum),
			ViewNum:    atoi64(t.ViewNum),
			IsTop:      atoflag(t.IsTop),
			IsGood:     atoflag(t.IsGood),
			IsHelp:     atoflag(t.IsHelp),
			IsHide:     atoflag(t.IsHide),
			IsShare:    atoflag(t.IsShare),
		}
		if item.Fname == "" {
			item.Fname = forum
		}
		for _, a := range t.Abstract {
			item.Text += a.Text
		}
		for _, m := range t.Media {
			if m.Type != "3" { // 3 = 图片
				continue
			}
			item.Images = append(item.Images, ThreadImage{
				Src:        m.SmallPic,
				BigSrc:     m.BigPic,
				OriginSrc:  m.OriginPic,
				Hash:       m.Hash,
				ShowWidth:  int(atoi64(m.Width)),
				ShowHeight: int(atoi64(m.Height)),
			})
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

type tbsResponse struct {
	Tbs     string `json:"tbs"`
	IsLogin int    `json:"is_login"`
}

func (c *HTTPClient) fetchTbs(ctx context.Context, account Account) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tbsURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cookie", "BDUSS="+account.BDUSS)
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var wire tbsResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return "", fmt.Errorf("decode tbs response: %w", err)
	}
	if wire.IsLogin == 0 {
		return "", &ProtocolError{Code: 1, Msg: "account not logged in"}
	}
	return wire.Tbs, nil
}

type postResponse struct {
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

func (c *HTTPClient) AddPost(ctx context.Context, forum string, tid int64, content string) (*PostResult, error) {
	account := c.pool.Random()
	if !account.Valid() {
		return nil, &ProtocolError{Code: 1, Msg: "posting requires an authenticated account"}
	}
	tbs, err := c.fetchTbs(ctx, account)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("kw", forum)
	params.Set("tid", strconv.FormatInt(tid, 10))
	params.Set("content", content)
	params.Set("tbs", tbs)

	body, err := c.postForm(ctx, postURL, params, account)
	if err != nil {
		return nil, err
	}
	var wire postResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode post response: %w", err)
	}
	code := int(atoi64(wire.ErrorCode))
	return &PostResult{OK: code == 0, Code: code, Msg: wire.ErrorMsg}, nil
}

// isServerBusy 远端限频/繁忙类错误码，可退避重试
func isServerBusy(code int) bool {
	switch code {
	case 110001, 219016, 300000:
		return true
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
