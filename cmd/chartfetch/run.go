package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/John-Robertt/chartfetch/internal/app/fetch"
	"github.com/John-Robertt/chartfetch/internal/config"
	"github.com/John-Robertt/chartfetch/internal/domain"
	"github.com/John-Robertt/chartfetch/internal/infra/dump"
	"github.com/John-Robertt/chartfetch/internal/infra/httpx"
	"github.com/John-Robertt/chartfetch/internal/logging"
	"github.com/John-Robertt/chartfetch/internal/provider"
	"github.com/John-Robertt/chartfetch/internal/provider/billboard"
)

const (
	usageMsg       = "Usage: chartfetch <year> [chart_name]"
	invalidYearMsg = "Year must be a valid integer"
)

// fatalError 是参数/环境错误：stdout 只输出 {"error": ...}，退出码 1。
type fatalError struct{ msg string }

func (e *fatalError) Error() string { return e.msg }

// run 与 main 相同，但把 stdout/stderr 作为参数传入，便于在测试中隔离执行。
//
// 退出码：
// - 0：完成了一次抓取（无论 success 是否为 true）
// - 1：参数错误，或配置/provider/client 无法加载
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(ctx, stdout, stderr)
	cmd.SetArgs(positionalNegatives(cmd, args))
	if err := cmd.Execute(); err != nil {
		emitFatal(stdout, err)
		return 1
	}
	return 0
}

type rootFlags struct {
	config   string
	provider string
	baseURL  string
	proxy    string
	timeout  time.Duration
	dumpDir  string
	logLevel string
	verbose  bool
}

func newRootCmd(ctx context.Context, stdout, stderr io.Writer) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "chartfetch <year> [chart_name]",
		Short: "Fetch a Billboard chart for a year as JSON",
		Long: `Fetch the Billboard year-end chart for <year>. If it is unavailable, fall back to the
weekly chart published for <year>-01-01. Exactly one JSON document is written to stdout;
logs go to stderr.`,
		Args: func(cmd *cobra.Command, args []string) error {
			// chart_name 之后的多余参数忽略。
			if len(args) < 1 {
				return &fatalError{msg: usageMsg}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(ctx, cmd, f, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &fatalError{msg: fmt.Sprintf("%s (%v)", usageMsg, err)}
	})

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "path to a YAML config file (default ./"+config.FileName+" if present)")
	fl.StringVar(&f.provider, "provider", config.DefaultProvider, "chart provider")
	fl.StringVar(&f.baseURL, "base-url", config.DefaultBaseURL, "chart site base URL")
	fl.StringVar(&f.proxy, "proxy", "", "HTTP proxy URL")
	fl.DurationVar(&f.timeout, "timeout", config.DefaultTimeout, "total timeout per request")
	fl.StringVar(&f.dumpDir, "dump-dir", "", "write request/response/page dumps under this directory")
	fl.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "log level: debug|info|warn|error")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "shorthand for --log-level=debug")
	return cmd
}

func execute(ctx context.Context, cmd *cobra.Command, f rootFlags, args []string, stdout, stderr io.Writer) error {
	year, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return &fatalError{msg: invalidYearMsg}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return &fatalError{msg: fmt.Sprintf("Failed to read working directory: %v", err)}
	}

	fl := cmd.Flags()
	cli := config.CLIArgs{
		ConfigPath:  f.config,
		Provider:    f.provider,
		ProviderSet: fl.Changed("provider"),
		BaseURL:     f.baseURL,
		BaseURLSet:  fl.Changed("base-url"),
		ProxyURL:    f.proxy,
		ProxyURLSet: fl.Changed("proxy"),
		Timeout:     f.timeout,
		TimeoutSet:  fl.Changed("timeout"),
		DumpDir:     f.dumpDir,
		DumpDirSet:  fl.Changed("dump-dir"),
		LogLevel:    f.logLevel,
		LogLevelSet: fl.Changed("log-level"),
	}
	if f.verbose {
		cli.LogLevel, cli.LogLevelSet = "debug", true
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return &fatalError{msg: err.Error()}
	}

	log := logging.New(stderr, logging.Options{Level: eff.LogLevel, NoColor: eff.LogNoColor})
	if eff.Source != "" {
		log.Debug("config loaded", "path", eff.Source)
	}

	chartName := eff.DefaultChart
	if len(args) > 1 {
		chartName = args[1]
	}

	p, err := loadProvider(eff)
	if err != nil {
		return &fatalError{msg: fmt.Sprintf("Failed to load chart provider: %v", err)}
	}
	client, err := httpx.NewClient(httpx.Options{ProxyURL: eff.ProxyURL, Timeout: eff.Timeout, RetryMax: eff.RetryMax})
	if err != nil {
		return &fatalError{msg: fmt.Sprintf("Failed to create HTTP client: %v", err)}
	}

	deps := fetch.Deps{Provider: p, Client: client, Logger: log}

	var store *dump.Store
	if eff.DumpDir != "" {
		dir := eff.DumpDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cwd, dir)
		}
		store = dump.New(dir)
		deps.Recorder = store
		if path, err := store.WriteRequest(dump.Request{Year: year, ChartName: chartName, Provider: p.Name(), BaseURL: eff.BaseURL}); err != nil {
			log.Warn("failed to dump request", "err", err)
		} else {
			log.Debug("request dumped", "path", path)
		}
	}

	started := time.Now()
	out := fetch.Run(ctx, deps, year, chartName)

	if err := emitResult(stdout, out.Result); err != nil {
		return err
	}

	if store != nil {
		resp := dump.Response{
			Year:      year,
			ChartName: chartName,
			Success:   out.Result.Success,
			Result:    out.Result,
			Attempts:  attemptRecords(out.Attempts),
		}
		if path, err := store.WriteResponse(resp); err != nil {
			log.Warn("failed to dump response", "err", err)
		} else {
			log.Debug("response dumped", "path", path)
		}
	}

	logSummary(log, out, time.Since(started))
	return nil
}

func loadProvider(eff config.EffectiveConfig) (provider.Provider, error) {
	reg, err := provider.NewRegistry(
		billboard.Provider{BaseURL: eff.BaseURL},
	)
	if err != nil {
		return nil, err
	}
	return reg.Lookup(eff.Provider)
}

// newEncoder 返回不做 HTML 转义的 encoder：榜单标题/歌手里的 & < > 原样输出。
func newEncoder(w io.Writer, indent bool) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc
}

func emitResult(w io.Writer, r domain.Result) error {
	var buf bytes.Buffer
	if err := newEncoder(&buf, true).Encode(r); err != nil {
		return &fatalError{msg: fmt.Sprintf("Failed to encode result: %v", err)}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func emitFatal(w io.Writer, err error) {
	msg := err.Error()
	var fe *fatalError
	if !errors.As(err, &fe) {
		msg = fmt.Sprintf("Unexpected error: %v", err)
	}
	_ = newEncoder(w, false).Encode(domain.FatalError{Error: msg})
}

var negativeIntRE = regexp.MustCompile(`^-[0-9]+$`)

// positionalNegatives 把 -5 这类负整数位置参数移到 "--" 之后，避免被 pflag 当成 shorthand。
// 其余参数的相对顺序不变；没有负整数时原样返回。
func positionalNegatives(cmd *cobra.Command, args []string) []string {
	fs := cmd.Flags()
	var flags, pos []string
	moved := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			pos = append(pos, args[i+1:]...)
			i = len(args)
		case negativeIntRE.MatchString(a):
			pos = append(pos, a)
			moved = true
		case len(a) > 1 && a[0] == '-':
			flags = append(flags, a)
			if takesValue(fs, a) && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		default:
			pos = append(pos, a)
		}
	}
	if !moved {
		return args
	}
	out := append(flags, "--")
	return append(out, pos...)
}

// takesValue 报告 flag token a 是否还会消费下一个参数（--name value / -n value）。
func takesValue(fs *pflag.FlagSet, a string) bool {
	if strings.Contains(a, "=") {
		return false
	}
	var fl *pflag.Flag
	switch {
	case strings.HasPrefix(a, "--"):
		fl = fs.Lookup(a[2:])
	case len(a) == 2:
		fl = fs.ShorthandLookup(a[1:])
	}
	return fl != nil && fl.NoOptDefVal == ""
}

func attemptRecords(as []fetch.Attempt) []dump.AttemptRecord {
	out := make([]dump.AttemptRecord, 0, len(as))
	for _, a := range as {
		rec := dump.AttemptRecord{Mode: a.Mode, Provider: a.Provider, Stage: a.Stage, PageURL: a.PageURL}
		if a.Err != nil {
			rec.Error = a.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}

func logSummary(log *slog.Logger, out fetch.Outcome, took time.Duration) {
	r := out.Result
	if r.Success {
		mode := fetch.ModeYearEnd
		if r.Date != "" {
			mode = fetch.ModeWeekly
		}
		log.Info("chart fetched", "chart", r.ChartName, "year", r.Year, "mode", mode,
			"entries", r.EntryCount, "attempts", len(out.Attempts), "took", took.Round(time.Millisecond))
		return
	}
	log.Warn("chart unavailable", "chart", r.ChartName, "year", r.Year, "kind", string(r.Kind),
		"error", r.Error, "attempts", len(out.Attempts), "took", took.Round(time.Millisecond))
}
