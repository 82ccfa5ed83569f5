package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Path:       "/abs/path",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{ID: 511000818, Status: StatusSkipped},
			{ID: 0, Status: StatusFailed}, // 致命错误等合成项
			{ID: 89631139, Status: StatusProcessed},
			{ID: 55555555, Status: StatusFailed},
		},
	}

	r.Finalize()

	got := []CardID{r.Items[0].ID, r.Items[1].ID, r.Items[2].ID, r.Items[3].ID}
	want := []CardID{55555555, 89631139, 511000818, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items 排序不符合契约：got=%v want=%v", got, want)
		}
	}
	if r.Summary.Total != 4 || r.Summary.Processed != 1 || r.Summary.Skipped != 1 || r.Summary.Failed != 2 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if !bytes.Contains(b, []byte("\"warnings\":[]")) {
		t.Fatalf("warnings 应输出为空数组而不是 null：%s", string(b))
	}
}

func TestParseCardID(t *testing.T) {
	cases := []struct {
		in   string
		want CardID
		ok   bool
	}{
		{"89631139", 89631139, true},
		{" 511000818 ", 511000818, true},
		{"0", 0, false},
		{"", 0, false},
		{"-1", 0, false},
		{"12ab", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseCardID(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("ParseCardID(%q)=%d,%v 期望 %d,%v", c.in, got, ok, c.want, c.ok)
		}
	}
	if CardID(511000818).FileName() != "511000818.jpg" {
		t.Fatalf("FileName 不符合预期：%q", CardID(511000818).FileName())
	}
}
