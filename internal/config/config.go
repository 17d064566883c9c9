package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/chartfetch/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是未指定 --config 时在 cwd 下查找的配置文件（可选）。
	FileName = "chartfetch.yaml"

	DefaultProvider = "billboard"
	DefaultBaseURL  = "https://www.billboard.com"
	DefaultTimeout  = 20 * time.Second
	DefaultLogLevel = "warn"

	maxRetry = 5
)

// CLIArgs 是 CLI 可覆盖的配置项，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：显式 flag 一定覆盖配置文件。
type CLIArgs struct {
	ConfigPath string

	Provider    string
	ProviderSet bool

	BaseURL    string
	BaseURLSet bool

	ProxyURL    string
	ProxyURLSet bool

	Timeout    time.Duration
	TimeoutSet bool

	DumpDir    string
	DumpDirSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 chartfetch.yaml 的解析结构。
type FileConfig struct {
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"base_url"`
	DefaultChart string        `yaml:"default_chart"`
	Proxy        *ProxyConfig  `yaml:"proxy"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryMax     int           `yaml:"retry_max"`
	DumpDir      string        `yaml:"dump_dir"`
	Log          LogConfig     `yaml:"log"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Source 是实际读取的配置文件路径；未读取任何文件时为空。
	Source string

	Provider     string
	BaseURL      string
	DefaultChart string
	ProxyURL     string
	Timeout      time.Duration
	RetryMax     int
	DumpDir      string

	LogLevel   slog.Level
	LogNoColor bool
}

// Default 返回不读取任何文件时的配置。
func Default() EffectiveConfig {
	return EffectiveConfig{
		Provider:     DefaultProvider,
		BaseURL:      DefaultBaseURL,
		DefaultChart: domain.DefaultChartName,
		Timeout:      DefaultTimeout,
		LogLevel:     slog.LevelWarn,
	}
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s: config file %q not found", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s: config file %q: %v", e.Code, e.Path, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/chartfetch.yaml（可选）
//
// 覆盖优先级（固定）：显式 CLI flag > 配置文件 > 内置默认。
// default_chart / retry_max / log.no_color 只由配置文件控制。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	var (
		cfgPath string
		fc      FileConfig
		exists  bool
		err     error
	)

	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwd, p)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwd, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}
	if !exists {
		cfgPath = ""
	}

	eff, err := merge(cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.Source = cfgPath
	return eff, nil
}

func merge(cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	eff := Default()

	// provider：CLI > config > 默认
	if cli.ProviderSet {
		eff.Provider = cli.Provider
	} else if strings.TrimSpace(fc.Provider) != "" {
		eff.Provider = fc.Provider
	}
	eff.Provider = strings.ToLower(strings.TrimSpace(eff.Provider))
	if eff.Provider == "" {
		return EffectiveConfig{}, errors.New("provider must not be empty")
	}

	if cli.BaseURLSet {
		eff.BaseURL = cli.BaseURL
	} else if strings.TrimSpace(fc.BaseURL) != "" {
		eff.BaseURL = fc.BaseURL
	}
	eff.BaseURL = strings.TrimRight(strings.TrimSpace(eff.BaseURL), "/")
	if err := validateHTTPURL("base_url", eff.BaseURL); err != nil {
		return EffectiveConfig{}, err
	}

	if c := strings.TrimSpace(fc.DefaultChart); c != "" {
		eff.DefaultChart = c
	}

	if cli.ProxyURLSet {
		eff.ProxyURL = strings.TrimSpace(cli.ProxyURL)
	} else if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("invalid proxy.url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("invalid proxy.url: %q", eff.ProxyURL)
		}
	}

	if cli.TimeoutSet {
		eff.Timeout = cli.Timeout
	} else if fc.Timeout != 0 {
		eff.Timeout = fc.Timeout
	}
	if eff.Timeout <= 0 {
		return EffectiveConfig{}, fmt.Errorf("timeout must be positive, got %s", eff.Timeout)
	}

	if fc.RetryMax < 0 || fc.RetryMax > maxRetry {
		return EffectiveConfig{}, fmt.Errorf("retry_max must be within [0, %d], got %d", maxRetry, fc.RetryMax)
	}
	eff.RetryMax = fc.RetryMax

	if cli.DumpDirSet {
		eff.DumpDir = strings.TrimSpace(cli.DumpDir)
	} else {
		eff.DumpDir = strings.TrimSpace(fc.DumpDir)
	}

	level := DefaultLogLevel
	if cli.LogLevelSet {
		level = cli.LogLevel
	} else if strings.TrimSpace(fc.Log.Level) != "" {
		level = fc.Log.Level
	}
	lv, err := ParseLevel(level)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.LogLevel = lv
	eff.LogNoColor = fc.Log.NoColor

	return eff, nil
}

// ParseLevel 解析 debug/info/warn/error（大小写不敏感）。
func ParseLevel(s string) (slog.Level, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q (want debug|info|warn|error)", s)
	}
	return lv, nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https: %q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
