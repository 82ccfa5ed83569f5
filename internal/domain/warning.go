package domain

// Warning 记录不影响整体运行的问题（例如某个扩展库无法读取）。
type Warning struct {
	Source string `json:"source"`
	Msg    string `json:"msg"`
}
