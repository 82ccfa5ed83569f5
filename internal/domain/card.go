package domain

import (
	"strconv"
	"strings"
)

// CardID 是卡片在本地数据库中的唯一主键（EDOPro datas.id）。
//
// 约束：0 不是合法 id；字符串形态为十进制、无前导符号。
type CardID uint64

// ParseCardID 解析十进制 id；允许首尾空白，拒绝 0 与非数字。
func ParseCardID(s string) (CardID, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return CardID(n), true
}

func (id CardID) String() string { return strconv.FormatUint(uint64(id), 10) }

// FileName 返回该 id 对应的图片文件名（远端 URL 与本地 pics/ 共用同一命名）。
func (id CardID) FileName() string { return id.String() + ".jpg" }

// CardRecord 是从记录源读出的一条 (id, name)。
type CardRecord struct {
	ID   CardID
	Name string
}
