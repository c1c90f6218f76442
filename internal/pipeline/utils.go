// =============================================================================
// utils.go - ユーティリティ関数
// =============================================================================
//
// このファイルはパッケージ全体で使用する汎用的なヘルパー関数を提供します。
//
// 【このファイルで提供する機能】
//   - ログ: slog ロガーの構築
//   - 文字列操作: rune単位の長さ・切り詰め
//   - HTTP操作: User-Agent付きGET
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// ログ
// -----------------------------------------------------------------------------

// NewLogger はレベル指定付きのテキストロガーを作成する
//
// ログは標準エラー出力に書くのが基本（Lambdaでは CloudWatch に流れる）。
func NewLogger(level string, w io.Writer) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)})
	return slog.New(h).With(slog.String("service", "ai-news-relay"))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// discardLogger はロガー未指定時のフォールバック
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// -----------------------------------------------------------------------------
// 文字列操作関数
// -----------------------------------------------------------------------------

// runeLen は文字列の長さをUnicodeコードポイント単位で返す
func runeLen(s string) int {
	return len([]rune(s))
}

// truncateRunes は先頭 n 文字（rune単位）を返す
//
// n が負の場合は空文字列、長さ以上の場合はそのまま返す。
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncateString は maxLen 文字を超える場合に末尾を "..." にして切り詰める
//
// 使用例:
//
//	truncateString("Hello World", 8)  // "Hello..."
//	truncateString("短い", 10)        // "短い"（そのまま）
func truncateString(s string, maxLen int) string {
	if runeLen(s) <= maxLen {
		return s
	}
	return truncateRunes(s, maxLen-3) + "..."
}

// -----------------------------------------------------------------------------
// HTTP操作関数
// -----------------------------------------------------------------------------

// newHTTPClient はタイムアウト付きのHTTPクライアントを作成する
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// httpGet はUser-Agentヘッダーを付けてHTTP GETリクエストを実行する
//
// ステータスが200以外の場合はボディを閉じてエラーを返す。
// 成功時は呼び出し元で resp.Body.Close() を行う必要がある。
func httpGet(ctx context.Context, client *http.Client, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s: %v", ErrTransport, url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch %s: %v", ErrTransport, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status code %d for %s", ErrTransport, resp.StatusCode, url)
	}
	return resp, nil
}
