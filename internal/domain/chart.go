package domain

// Entry 是榜单中的一条排名记录。字段直接来自 provider 的解析结果，不做二次加工。
type Entry struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Rank   int    `json:"rank"`
	Image  string `json:"image"`
}

// Chart 是 provider 解析得到的一期榜单（年终榜或周榜）。
//
// 约束：
// - Name 是榜单标识（slug，例如 hot-100），不是展示标题
// - Date 只在周榜查询时有值（YYYY-MM-DD）
// - Entries 保持页面上的原始顺序
type Chart struct {
	Name    string
	Title   string
	Date    string
	Entries []Entry
}

// ErrorKind 是一次抓取失败的分类（tagged result）。
// 上层按 Kind 决定是否回退，而不是解析错误文本。
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindNotFound        ErrorKind = "not_found"
	KindParseFailure    ErrorKind = "parse_failure"
	KindUnsupportedYear ErrorKind = "unsupported_year"
	KindValue           ErrorKind = "value"
	KindUnexpected      ErrorKind = "unexpected"
	KindWeeklyFailed    ErrorKind = "weekly_failed"
)

// DefaultChartName 是未指定 chart_name 时使用的榜单。
const DefaultChartName = "hot-100"
