// =============================================================================
// fetch.go - ニュースページ取得
// =============================================================================
//
// 取得元のページ（またはフィード）を1回だけGETし、テキストとして返す。
// リトライ・バックオフは行わない。失敗はそのサイクルの終了を意味する。
//
// 【実装】
//   - HTTPFetcher: HTMLページをそのまま返す（MARKUP_COMPACT時はgoqueryで軽量化）
//   - FeedFetcher: RSS/Atomをgofeedで解析し、プレーンテキストに整形して返す
//
// HTMLの意味解析はしない。記事の抽出は生成AI側の仕事。
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

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// MarkupFetcher は取得ステージのインターフェース
type MarkupFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// NewFetcher は設定の種類に応じたFetcherを返す
func NewFetcher(cfg *SourceConfig, log *slog.Logger) MarkupFetcher {
	if cfg.Kind == SourceFeed {
		return NewFeedFetcher(cfg, log)
	}
	return NewHTTPFetcher(cfg, log)
}

// =============================================================================
// HTTPFetcher
// =============================================================================

// HTTPFetcher はHTMLページを取得する
type HTTPFetcher struct {
	client    *http.Client
	url       string
	userAgent string
	compact   bool
	log       *slog.Logger
}

// NewHTTPFetcher は HTTPFetcher を作成する
func NewHTTPFetcher(cfg *SourceConfig, log *slog.Logger) *HTTPFetcher {
	if log == nil {
		log = discardLogger()
	}
	return &HTTPFetcher{
		client:    newHTTPClient(cfg.Timeout),
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		compact:   cfg.Compact,
		log:       log.With(slog.String("component", "fetcher")),
	}
}

// Fetch はページを取得してマークアップを返す
func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	log := f.log.With(slog.String("url", f.url))
	log.Info("Fetching markup")

	resp, err := httpGet(ctx, f.client, f.url, f.userAgent)
	if err != nil {
		log.Error("Fetch failed", slog.Any("error", err))
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Reading body failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: failed to read body of %s: %v", ErrTransport, f.url, err)
	}
	markup := string(body)

	if f.compact {
		compacted, err := compactMarkup(markup)
		if err != nil {
			// 軽量化に失敗しても元のマークアップで続行する
			log.Warn("Markup compaction failed, using raw markup", slog.Any("error", err))
		} else {
			log.Debug("Markup compacted", slog.Int("before", len(markup)), slog.Int("after", len(compacted)))
			markup = compacted
		}
	}

	log.Info("Markup fetched", slog.Int("bytes", len(markup)))
	return markup, nil
}

// noiseSelectors はモデルに渡す必要のない要素
const noiseSelectors = "script, style, noscript, svg, iframe, link, meta, template"

// compactMarkup はスクリプトやスタイル等を除去したHTMLを返す
//
// リンクや見出しはそのまま残す（抽出はモデルに任せる）。
func compactMarkup(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse HTML failed: %w", err)
	}
	doc.Find(noiseSelectors).Remove()

	// コメントノードも除去
	doc.Find("*").Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == "#comment"
	}).Remove()

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render HTML failed: %w", err)
	}
	return out, nil
}

// =============================================================================
// FeedFetcher
// =============================================================================

// FeedFetcher はRSS/Atomフィードを取得してテキスト化する
type FeedFetcher struct {
	client    *http.Client
	url       string
	userAgent string
	log       *slog.Logger
}

// NewFeedFetcher は FeedFetcher を作成する
func NewFeedFetcher(cfg *SourceConfig, log *slog.Logger) *FeedFetcher {
	if log == nil {
		log = discardLogger()
	}
	return &FeedFetcher{
		client:    newHTTPClient(cfg.Timeout),
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		log:       log.With(slog.String("component", "fetcher")),
	}
}

// Fetch はフィードを取得し、renderFeed の形式で返す
func (f *FeedFetcher) Fetch(ctx context.Context) (string, error) {
	log := f.log.With(slog.String("url", f.url))
	log.Info("Fetching feed")

	resp, err := httpGet(ctx, f.client, f.url, f.userAgent)
	if err != nil {
		log.Error("Fetch failed", slog.Any("error", err))
		return "", err
	}
	defer resp.Body.Close()

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		log.Error("Feed parse failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: feed parse failed for %s: %v", ErrTransport, f.url, err)
	}

	text := renderFeed(feed)
	log.Info("Feed fetched", slog.Int("items", len(feed.Items)), slog.Int("bytes", len(text)))
	return text, nil
}

// renderFeed はフィードをモデル向けのプレーンテキストにする
//
// 【出力フォーマット】
//
//	Feed: Techmeme
//
//	Title: 記事タイトル
//	Link: https://...
//	Published: 2026-01-05T12:00:00Z
//	Description: 説明文
func renderFeed(feed *gofeed.Feed) string {
	var sb strings.Builder
	if feed.Title != "" {
		sb.WriteString("Feed: " + strings.TrimSpace(feed.Title) + "\n")
	}
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		sb.WriteString("\nTitle: " + title + "\n")
		if item.Link != "" {
			sb.WriteString("Link: " + strings.TrimSpace(item.Link) + "\n")
		}
		if item.PublishedParsed != nil {
			sb.WriteString("Published: " + item.PublishedParsed.UTC().Format(time.RFC3339) + "\n")
		}
		if desc := strings.TrimSpace(item.Description); desc != "" {
			sb.WriteString("Description: " + desc + "\n")
		}
	}
	return sb.String()
}
