package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options 控制终端日志的级别与着色。
type Options struct {
	Level slog.Level
	// NoColor 强制关闭颜色；否则仅当 w 是终端时才着色。
	NoColor bool
}

// NewTerminalHandler 返回写到 w 的 tint handler。
// stdout 留给 JSON 结果，日志一律写 stderr（由调用方传入）。
func NewTerminalHandler(w io.Writer, opts Options) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.TimeOnly,
		NoColor:    opts.NoColor || !IsTerminal(w),
	})
}

// New 是 slog.New(NewTerminalHandler(w, opts)) 的简写。
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(NewTerminalHandler(w, opts))
}

// Discard 返回丢弃所有输出的 logger（测试与未注入 logger 的调用方使用）。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// IsTerminal 判断 w 是否为交互终端（含 Cygwin/MSYS 终端）。
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
