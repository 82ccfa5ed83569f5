package cdb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// recordsQuery 读取 datas 中的全部 id，并关联 texts 中的名称。
// 名称缺失（texts 无对应行）时返回空串：id 仍要参与缺图检查。
const recordsQuery = `SELECT d.id, COALESCE(t.name, '') FROM datas d LEFT JOIN texts t ON t.id = d.id ORDER BY d.id`

// Source 是一个 EDOPro 卡片数据库文件（.cdb，SQLite）。
type Source struct {
	Path string
}

// Error 是读取某个 .cdb 失败的可追溯错误。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("读取卡片数据库 %q 失败：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (s Source) Name() string { return s.Path }

// ListRecords 以只读方式打开数据库并读出全部 (id, name)。
//
// 文件不存在时直接报错，不会让 sqlite 驱动顺手创建一个空库。
func (s Source) ListRecords(ctx context.Context) ([]domain.CardRecord, error) {
	fi, err := os.Stat(s.Path)
	if err != nil {
		return nil, &Error{Path: s.Path, Err: err}
	}
	if fi.IsDir() {
		return nil, &Error{Path: s.Path, Err: fmt.Errorf("是目录而不是文件")}
	}

	db, err := sql.Open("sqlite3", dsn(s.Path))
	if err != nil {
		return nil, &Error{Path: s.Path, Err: err}
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, recordsQuery)
	if err != nil {
		return nil, &Error{Path: s.Path, Err: err}
	}
	defer rows.Close()

	out := make([]domain.CardRecord, 0, 1024)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, &Error{Path: s.Path, Err: err}
		}
		if id <= 0 {
			continue
		}
		out = append(out, domain.CardRecord{ID: domain.CardID(id), Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Path: s.Path, Err: err}
	}
	return out, nil
}

func dsn(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	q := url.Values{}
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()
	return u.String()
}
