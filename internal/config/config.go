// Package config は環境変数・コマンドライン引数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	keyInvokePath          = "invoke_path"
	keyInvokeArgs          = "invoke_args"
	keyProcessTimeout      = "process_timeout"
	keyHost                = "host"
	keyPort                = "port"
	keyGinMode             = "gin_mode"
	keyShutdownTimeout     = "shutdown_timeout"
	keyUploadDir           = "upload_dir"
	keyMaxUploadBytes      = "max_upload_bytes"
	keyMaxConcurrentJobs   = "max_concurrent_jobs"
	keySubmitRatePerMinute = "submit_rate_per_minute"
	keyLogLevel            = "log_level"
	keyMetricsEnabled      = "metrics_enabled"
	keyCORSAllowedOrigins  = "cors_allowed_origins"
	keySessionSecret       = "session_secret"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 外部処理設定
	InvokePath     string        `yaml:"invoke_path"`     // 外部処理プログラムのパス
	InvokeArgs     []string      `yaml:"invoke_args"`     // 入力/出力パスの前に渡す追加引数
	ProcessTimeout time.Duration `yaml:"process_timeout"` // 外部処理のタイムアウト（0 は無制限）

	// サーバー設定
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GinMode         string        `yaml:"gin_mode"` // Ginの実行モード (debug, release, test)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// ストレージ・アップロード制限
	UploadDir      string `yaml:"upload_dir"`       // 入力/出力アーカイブの保存先
	MaxUploadBytes int64  `yaml:"max_upload_bytes"` // 単一アップロードの最大サイズ（バイト）

	// ジョブ設定
	MaxConcurrentJobs   int `yaml:"max_concurrent_jobs"`    // 同時に実行する外部処理の上限（0 は無制限）
	SubmitRatePerMinute int `yaml:"submit_rate_per_minute"` // クライアントごとの投入レート上限（0 は無制限）

	// ログ・監視
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// CORS / セッション
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"` // CORS許可オリジン（カンマ区切り、空なら無効）
	SessionSecret      string `yaml:"-"`                    // セッション署名用の秘密鍵
}

type binding struct {
	key  string
	env  string
	flag string
}

var bindings = []binding{
	{key: keyInvokePath, env: "INVOKE_PATH", flag: "invokePath"},
	{key: keyInvokeArgs, env: "INVOKE_ARGS", flag: "invokeArgs"},
	{key: keyProcessTimeout, env: "PROCESS_TIMEOUT"},
	{key: keyHost, env: "HOST", flag: "host"},
	{key: keyPort, env: "PORT", flag: "port"},
	{key: keyGinMode, env: "GIN_MODE"},
	{key: keyShutdownTimeout, env: "SHUTDOWN_TIMEOUT"},
	{key: keyUploadDir, env: "UPLOAD_DIR", flag: "uploadDir"},
	{key: keyMaxUploadBytes, env: "MAX_UPLOAD_BYTES"},
	{key: keyMaxConcurrentJobs, env: "MAX_CONCURRENT_JOBS"},
	{key: keySubmitRatePerMinute, env: "SUBMIT_RATE_PER_MINUTE"},
	{key: keyLogLevel, env: "LOG_LEVEL"},
	{key: keyMetricsEnabled, env: "METRICS_ENABLED"},
	{key: keyCORSAllowedOrigins, env: "CORS_ALLOWED_ORIGINS"},
	{key: keySessionSecret, env: "SESSION_SECRET"},
}

// RegisterFlags はコマンドラインから上書きできる設定をフラグとして登録します。
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("invokePath", "", "Path to the program that will be invoked as <program> [args...] <input> <output>")
	flags.String("invokeArgs", "", "Extra arguments passed to the program before the input/output paths")
	flags.String("host", "127.0.0.1", "Host to bind to")
	flags.Int("port", 7654, "Port to bind to")
	flags.String("uploadDir", "./uploads", "Directory for uploaded and produced archives")
}

// Load は .env.local・環境変数・フラグから設定を読み込みます。
// 優先順位はフラグ（明示指定時）> 環境変数 > デフォルト値です。flags は nil でも構いません。
func Load(flags *pflag.FlagSet) (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	v, err := newViper(flags)
	if err != nil {
		return nil, err
	}

	config := &Config{
		InvokePath:     strings.TrimSpace(v.GetString(keyInvokePath)),
		InvokeArgs:     strings.Fields(v.GetString(keyInvokeArgs)),
		ProcessTimeout: v.GetDuration(keyProcessTimeout),

		Host:            v.GetString(keyHost),
		Port:            v.GetInt(keyPort),
		GinMode:         v.GetString(keyGinMode),
		ShutdownTimeout: v.GetDuration(keyShutdownTimeout),

		UploadDir:      v.GetString(keyUploadDir),
		MaxUploadBytes: v.GetInt64(keyMaxUploadBytes),

		MaxConcurrentJobs:   v.GetInt(keyMaxConcurrentJobs),
		SubmitRatePerMinute: v.GetInt(keySubmitRatePerMinute),

		LogLevel:       strings.ToLower(v.GetString(keyLogLevel)),
		MetricsEnabled: v.GetBool(keyMetricsEnabled),

		CORSAllowedOrigins: v.GetString(keyCORSAllowedOrigins),
		SessionSecret:      v.GetString(keySessionSecret),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(keyHost, "127.0.0.1")
	v.SetDefault(keyPort, 7654)
	v.SetDefault(keyGinMode, "debug")
	v.SetDefault(keyShutdownTimeout, 30*time.Second)
	v.SetDefault(keyUploadDir, "./uploads")
	v.SetDefault(keyMaxUploadBytes, int64(1<<30)) // 1GB
	v.SetDefault(keyMaxConcurrentJobs, 0)
	v.SetDefault(keySubmitRatePerMinute, 0)
	v.SetDefault(keyProcessTimeout, time.Duration(0))
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyMetricsEnabled, true)

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", b.env, err)
		}
		if flags == nil || b.flag == "" {
			continue
		}
		if f := flags.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", b.flag, err)
			}
		}
	}
	return v, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.InvokePath == "" {
		return fmt.Errorf("INVOKE_PATH (--invokePath) is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535 (got %d)", c.Port)
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive (got %d)", c.MaxUploadBytes)
	}
	if c.MaxConcurrentJobs < 0 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must not be negative (got %d)", c.MaxConcurrentJobs)
	}
	if c.SubmitRatePerMinute < 0 {
		return fmt.Errorf("SUBMIT_RATE_PER_MINUTE must not be negative (got %d)", c.SubmitRatePerMinute)
	}
	if c.ProcessTimeout < 0 {
		return fmt.Errorf("PROCESS_TIMEOUT must not be negative (got %s)", c.ProcessTimeout)
	}
	// 単位なしの数値はナノ秒として解釈されるため、1ms 未満は設定ミスとみなす
	if c.ProcessTimeout > 0 && c.ProcessTimeout < time.Millisecond {
		return fmt.Errorf("PROCESS_TIMEOUT is too short (got %s); specify a unit such as \"30s\"", c.ProcessTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must not be negative (got %s)", c.ShutdownTimeout)
	}
	if c.ShutdownTimeout > 0 && c.ShutdownTimeout < time.Millisecond {
		return fmt.Errorf("SHUTDOWN_TIMEOUT is too short (got %s); specify a unit such as \"30s\"", c.ShutdownTimeout)
	}

	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be one of debug, release, test (got %q)", c.GinMode)
	}

	// 本番環境ではセッション鍵を固定する
	if c.GinMode == "release" && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required in release mode")
	}

	return nil
}

// Addr は待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
