// =============================================================================
// config.go - ボット設定
// =============================================================================
//
// このファイルは環境変数・CLIフラグの解析と設定管理を行います。
// 設定は起動時に一度だけ構築し、各コンポーネントへポインタで渡す。
//
// 【設定グループ】
//   - SourceConfig:  取得元（HTML / フィード）設定
//   - GeminiConfig:  生成AI API設定
//   - TwitterConfig: X (Twitter) API設定
//   - NotionConfig:  アーカイブ先（任意）
//   - EmailConfig:   失敗通知メール（任意）
//
// 【認証情報のチェック】
//   起動時には検証しない。各ステージが実行時に自分の設定だけを
//   Validate() し、不足していればそのサイクルを失敗として終える。
//
// =============================================================================
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// =============================================================================
// 設定構造体
// =============================================================================

// Config はボットの全設定を保持する
type Config struct {
	Source   SourceConfig
	Gemini   GeminiConfig
	Twitter  TwitterConfig
	Notion   NotionConfig
	Email    EmailConfig
	LogLevel string
	DryRun   bool

	// NotionSetup はサイクルを実行せず、アーカイブ用データベースを作成する（CLIのみ）
	NotionSetup bool

	// Interval が0より大きい場合、CLIはこの間隔でサイクルを繰り返す
	Interval time.Duration
}

// SourceKind は取得元の種類
type SourceKind string

const (
	SourceHTML SourceKind = "html"
	SourceFeed SourceKind = "feed"
)

// SourceConfig は取得元に関する設定
type SourceConfig struct {
	Kind      SourceKind
	URL       string
	UserAgent string
	Timeout   time.Duration

	// Compact がtrueの場合、script/style等を除去してからモデルに渡す
	Compact bool
}

// GeminiConfig は生成AI APIに関する設定
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // テスト用の上書き（通常は空）
	Timeout time.Duration
}

// Validate はAPIキーの有無を確認する
func (c *GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is required", ErrConfiguration)
	}
	return nil
}

// TwitterConfig はX APIに関する設定
type TwitterConfig struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BaseURL           string
	Timeout           time.Duration

	// PostDelay は連続する投稿の間に挟む待機時間
	PostDelay time.Duration
}

// Validate は4つの認証情報がすべて揃っているか確認する
func (c *TwitterConfig) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "TWITTER_API_KEY")
	}
	if c.APISecret == "" {
		missing = append(missing, "TWITTER_API_SECRET")
	}
	if c.AccessToken == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// NotionConfig はNotionアーカイブの設定（TokenとDatabaseIDが揃った場合のみ有効）
type NotionConfig struct {
	Token      string
	DatabaseID string
	PageID     string // データベース作成時の親ページ
}

// Enabled はアーカイブが有効かどうかを返す
func (c *NotionConfig) Enabled() bool {
	return c.Token != "" && c.DatabaseID != ""
}

// EmailConfig は失敗通知メールの設定（3つ揃った場合のみ有効）
type EmailConfig struct {
	From     string
	Password string
	To       string
}

// Enabled は通知が有効かどうかを返す
func (c *EmailConfig) Enabled() bool {
	return c.From != "" && c.Password != "" && c.To != ""
}

// =============================================================================
// フラグ・環境変数解析
// =============================================================================

// DefaultUserAgent はブラウザ相当のUser-Agent（既定のGoクライアントは拒否されることがある）
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// rawConfig は go-flags が直接埋めるフラットな構造体
//
// 環境変数名は元のボットのものを維持している（.env をそのまま使えるように）。
type rawConfig struct {
	SourceKind    string        `long:"source-kind" env:"SOURCE_KIND" default:"html" choice:"html" choice:"feed" description:"Source type: html page or RSS/Atom feed"`
	SourceURL     string        `long:"source-url" env:"SOURCE_URL" default:"https://www.techmeme.com/" description:"Page (or feed) to scrape"`
	UserAgent     string        `long:"user-agent" env:"USER_AGENT" description:"User-Agent header for the source request"`
	HTTPTimeout   time.Duration `long:"http-timeout" env:"HTTP_TIMEOUT" default:"60s" description:"Timeout applied to every outbound HTTP client"`
	MarkupCompact bool          `long:"markup-compact" env:"MARKUP_COMPACT" description:"Strip script/style/svg nodes before sending markup to the model"`

	GeminiAPIKey  string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key"`
	GeminiModel   string `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-2.5-flash" description:"Gemini model name"`
	GeminiBaseURL string `long:"gemini-base-url" env:"GEMINI_BASE_URL" description:"Override Gemini API base URL"`

	TwitterAPIKey            string        `long:"twitter-api-key" env:"TWITTER_API_KEY" description:"X API key"`
	TwitterAPISecret         string        `long:"twitter-api-secret" env:"TWITTER_API_SECRET" description:"X API secret"`
	TwitterAccessToken       string        `long:"twitter-access-token" env:"TWITTER_ACCESS_TOKEN" description:"X access token"`
	TwitterAccessTokenSecret string        `long:"twitter-access-token-secret" env:"TWITTER_ACCESS_TOKEN_SECRET" description:"X access token secret"`
	TwitterBaseURL           string        `long:"twitter-base-url" env:"TWITTER_API_BASE" default:"https://api.twitter.com" description:"X API base URL"`
	PostDelay                time.Duration `long:"post-delay" env:"POST_DELAY" default:"2s" description:"Pause between consecutive posts in a thread"`

	NotionToken      string `long:"notion-token" env:"NOTION_TOKEN" description:"Notion integration token (optional archive)"`
	NotionDatabaseID string `long:"notion-database-id" env:"NOTION_DATABASE_ID" description:"Notion database receiving posted items"`
	NotionPageID     string `long:"notion-page-id" env:"NOTION_PAGE_ID" description:"Parent page for --notion-setup"`
	NotionSetup      bool   `long:"notion-setup" description:"Create the archive database under NOTION_PAGE_ID and exit"`

	EmailFrom     string `long:"email-from" env:"EMAIL_FROM" description:"Failure notification sender (Gmail)"`
	EmailPassword string `long:"email-password" env:"EMAIL_PASSWORD" description:"Gmail app password"`
	EmailTo       string `long:"email-to" env:"EMAIL_TO" description:"Failure notification recipients, comma separated"`

	LogLevel string        `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	DryRun   bool          `long:"dry-run" env:"DRY_RUN" description:"Log the thread instead of posting it"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Repeat the cycle at this interval (CLI only, 0 runs once)"`
}

// Load は引数と環境変数から Config を構築する
//
// --help が指定された場合は (nil, nil) を返す。
func Load(args []string) (*Config, error) {
	var raw rawConfig

	parser := flags.NewParser(&raw, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	userAgent := raw.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	cfg := &Config{
		Source: SourceConfig{
			Kind:      SourceKind(raw.SourceKind),
			URL:       raw.SourceURL,
			UserAgent: userAgent,
			Timeout:   raw.HTTPTimeout,
			Compact:   raw.MarkupCompact,
		},
		Gemini: GeminiConfig{
			APIKey:  raw.GeminiAPIKey,
			Model:   raw.GeminiModel,
			BaseURL: raw.GeminiBaseURL,
			Timeout: raw.HTTPTimeout,
		},
		Twitter: TwitterConfig{
			APIKey:            raw.TwitterAPIKey,
			APISecret:         raw.TwitterAPISecret,
			AccessToken:       raw.TwitterAccessToken,
			AccessTokenSecret: raw.TwitterAccessTokenSecret,
			BaseURL:           strings.TrimRight(raw.TwitterBaseURL, "/"),
			Timeout:           raw.HTTPTimeout,
			PostDelay:         raw.PostDelay,
		},
		Notion: NotionConfig{
			Token:      raw.NotionToken,
			DatabaseID: raw.NotionDatabaseID,
			PageID:     raw.NotionPageID,
		},
		Email: EmailConfig{
			From:     raw.EmailFrom,
			Password: raw.EmailPassword,
			To:       raw.EmailTo,
		},
		LogLevel:    raw.LogLevel,
		DryRun:      raw.DryRun,
		NotionSetup: raw.NotionSetup,
		Interval:    raw.Interval,
	}

	if cfg.Twitter.PostDelay < 0 {
		return nil, fmt.Errorf("POST_DELAY cannot be negative")
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("INTERVAL cannot be negative")
	}

	return cfg, nil
}
