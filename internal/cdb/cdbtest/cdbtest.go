// Package cdbtest 提供测试用的最小 EDOPro 卡库构造工具。
package cdbtest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// fixtureSchema 是 EDOPro 卡库中与本工具相关的最小子集。
const fixtureSchema = `
CREATE TABLE IF NOT EXISTS datas (id INTEGER PRIMARY KEY, ot INTEGER DEFAULT 0, alias INTEGER DEFAULT 0);
CREATE TABLE IF NOT EXISTS texts (id INTEGER PRIMARY KEY, name TEXT);
`

// WriteFixture 在 path 创建一个最小 .cdb 并写入 records。
func WriteFixture(t testing.TB, path string, records []domain.CardRecord) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("打开 sqlite 失败：%v", err)
	}
	defer db.Close()

	if _, err := db.Exec(fixtureSchema); err != nil {
		t.Fatalf("建表失败：%v", err)
	}
	for _, r := range records {
		if _, err := db.Exec(`INSERT INTO datas (id) VALUES (?)`, int64(r.ID)); err != nil {
			t.Fatalf("写入 datas 失败：%v", err)
		}
		if _, err := db.Exec(`INSERT INTO texts (id, name) VALUES (?, ?)`, int64(r.ID), r.Name); err != nil {
			t.Fatalf("写入 texts 失败：%v", err)
		}
	}
}
