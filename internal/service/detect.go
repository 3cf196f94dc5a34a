package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/d60-Lab/tieba-pipeline/config"
)

// 合集帖标题中的年周标记，如 "2026年第5周" / "2026第5周"
var yearWeekRe = regexp.MustCompile(`(\d{4})\s*年?\s*第\s*(\d{1,2})\s*周`)

// Detection 标题检测结果。未命中类目时 Year/Week 仍可能有值（诊断用），
// 但 IsCollection 仅在年周 + 类目关键词同时命中时为真
type Detection struct {
	IsCollection bool
	Category     string
	Year         int
	Week         int
}

// ParseYearWeek 解析标题中的年周。周超出 1..53 时只返回年
func ParseYearWeek(title string) (year, week int) {
	m := yearWeekRe.FindStringSubmatch(title)
	if m == nil {
		return 0, 0
	}
	year, _ = strconv.Atoi(m[1])
	week, _ = strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return year, 0
	}
	return year, week
}

// DetectCollection 纯函数：规则为有序数据，多类命中时先配置者优先
func DetectCollection(title string, rules []config.CategoryRule) Detection {
	year, week := ParseYearWeek(title)
	if year == 0 || week == 0 {
		return Detection{}
	}
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(title, kw) {
				return Detection{IsCollection: true, Category: rule.Category, Year: year, Week: week}
			}
		}
	}
	return Detection{Year: year, Week: week}
}
