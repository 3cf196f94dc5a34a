package tieba

// 协议响应一律映射为显式结构体，松散对象不出此包

// ThreadImage 帖子内嵌图片
type ThreadImage struct {
	Src        string
	BigSrc     string
	OriginSrc  string
	Hash       string
	ShowWidth  int
	ShowHeight int
}

// ThreadItem 列表页单帖
type ThreadItem struct {
	Tid        int64
	Fid        int64
	Fname      string
	Title      string
	AuthorID   int64
	AuthorName string

	Agree int64
	Pid   int64

	CreateTime int64
	LastTime   int64
	ReplyNum   int64
	ViewNum    int64

	IsTop   bool
	IsGood  bool
	IsHelp  bool
	IsHide  bool
	IsShare bool

	Text   string
	Images []ThreadImage
}

// ThreadPage 一页抓取结果
type ThreadPage struct {
	Items   []ThreadItem
	HasMore bool
}

// PostResult 回帖结果
type PostResult struct {
	OK   bool
	Code int
	Msg  string
}

// CanonicalImageURL 下载用 URL：优先大图，其次原图，最后缩略图
func (img ThreadImage) CanonicalImageURL() string {
	if img.BigSrc != "" {
		return img.BigSrc
	}
	if img.OriginSrc != "" {
		return img.OriginSrc
	}
	return img.Src
}
