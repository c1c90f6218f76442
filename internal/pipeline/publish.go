// =============================================================================
// publish.go - スレッド投稿
// =============================================================================
//
// NewsBatch をリプライチェーン（スレッド）として投稿する。
//
// 【スレッド構成】（len(batch) + 2 件）
//
//	[イントロ] ← 親なし
//	   └ [ニュース1] ← イントロへの返信
//	        └ [ニュース2] ← ニュース1への返信
//	             └ [アウトロ] ← 最後のニュースへの返信
//
// 【投稿の順序】
//   各投稿は直前の投稿のIDを受け取ってから作成する。並列化はしない。
//   投稿と投稿の間には固定の待機（既定2秒）を入れる。レート制限回避のための
//   粗い間隔であり、バックオフではない。
//
// 【失敗時】
//   最初に失敗した投稿で中断する。投稿済みのものは取り消さない。
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MaxPostLength は1投稿の最大文字数
const MaxPostLength = 280

// ellipsis は切り詰め時に付ける記号（3文字）
const ellipsis = "..."

// separatorAllowance は区切りの空行分として差し引く文字数
//
// 実際の区切り（"\n\n" × 3）と一致する。
const separatorAllowance = 6

// threadDateLayout はイントロ・アウトロに入れる日付の形式（例: "May 31, 2025"）
const threadDateLayout = "Jan 2, 2006"

// Poster はSNS APIの抽象
//
// replyTo が空なら新しいスレッドを開始する。戻り値は作成された投稿のID。
type Poster interface {
	Post(ctx context.Context, text, replyTo string) (string, error)
}

// Sleeper は投稿間の待機。ctx がキャンセルされたらエラーを返す。
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext は time.Timer を使った Sleeper の既定実装
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PublishResult は投稿結果
type PublishResult struct {
	ThreadID string   // イントロ投稿のID
	PostIDs  []string // 作成された投稿のID（投稿順）
}

// Publisher は投稿ステージ
type Publisher struct {
	poster Poster
	delay  time.Duration
	sleep  Sleeper
	now    func() time.Time
	log    *slog.Logger
}

// PublisherOption は Publisher のオプション
type PublisherOption func(*Publisher)

// WithSleeper は待機関数を差し替える（テスト用）
func WithSleeper(s Sleeper) PublisherOption {
	return func(p *Publisher) { p.sleep = s }
}

// WithClock は現在時刻の取得関数を差し替える（テスト用）
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher は Publisher を作成する
func NewPublisher(poster Poster, delay time.Duration, log *slog.Logger, opts ...PublisherOption) *Publisher {
	if log == nil {
		log = discardLogger()
	}
	p := &Publisher{
		poster: poster,
		delay:  delay,
		sleep:  SleepContext,
		now:    time.Now,
		log:    log.With(slog.String("component", "publisher")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish はバッチをスレッドとして投稿する
//
// バッチが空の場合は何も投稿せずに成功を返す。
// 途中で失敗した場合も、それまでに投稿できたIDは PublishResult に入る。
func (p *Publisher) Publish(ctx context.Context, batch NewsBatch) (PublishResult, error) {
	var res PublishResult
	if len(batch) == 0 {
		p.log.Info("No news items to post")
		return res, nil
	}

	date := p.now().Format(threadDateLayout)
	texts := make([]string, 0, len(batch)+2)
	texts = append(texts, IntroText(date))
	for _, item := range batch {
		texts = append(texts, FitPost(item))
	}
	texts = append(texts, OutroText(date))

	p.log.Info("Posting news thread", slog.Int("items", len(batch)), slog.Int("posts", len(texts)))

	parent := ""
	for i, text := range texts {
		if i > 0 {
			if err := p.sleep(ctx, p.delay); err != nil {
				p.log.Error("Thread aborted while waiting", slog.Int("posted", len(res.PostIDs)), slog.Any("error", err))
				return res, fmt.Errorf("thread aborted after %d posts: %w", len(res.PostIDs), err)
			}
		}

		label := postLabel(i, len(texts))
		id, err := p.poster.Post(ctx, text, parent)
		if err != nil {
			p.logFailure(label, len(res.PostIDs), err)
			return res, fmt.Errorf("posting %s: %w", label, err)
		}

		if i == 0 {
			res.ThreadID = id
		}
		res.PostIDs = append(res.PostIDs, id)
		parent = id
		p.log.Info("Posted", slog.String("post", label), slog.String("id", id))
	}

	p.log.Info("News thread posted", slog.String("thread_id", res.ThreadID), slog.Int("posts", len(res.PostIDs)))
	return res, nil
}

// postLabel はログ用の投稿名（intro / item 1 / ... / outro）
func postLabel(i, total int) string {
	switch i {
	case 0:
		return "intro"
	case total - 1:
		return "outro"
	default:
		return fmt.Sprintf("item %d", i)
	}
}

// logFailure は拒否理由ごとに異なるメッセージでログを出す
func (p *Publisher) logFailure(label string, posted int, err error) {
	log := p.log.With(slog.String("post", label), slog.Int("posted", posted), slog.Any("error", err))

	var pe *PlatformError
	if !errors.As(err, &pe) {
		log.Error("Posting failed")
		return
	}

	log = log.With(slog.Int("status", pe.Status))
	switch pe.Kind {
	case RejectUnauthorized:
		log.Error("Unauthorized (401): check X API keys and app permissions")
	case RejectDuplicate:
		log.Error("Forbidden (403): X flagged this post as duplicate content")
	case RejectForbidden:
		log.Error("Forbidden (403): possible rate limit, content issue, or app permission problem")
	case RejectRateLimited:
		log.Error("Rate limited (429): too many requests")
	default:
		log.Error("X API rejected the post")
	}
}

// =============================================================================
// 投稿本文
// =============================================================================

// IntroText はスレッド冒頭の投稿
func IntroText(date string) string {
	return fmt.Sprintf("🚀 AI News & Insights for %s! 🧵👇 #AINews #TechUpdate", date)
}

// OutroText はスレッド末尾の投稿
func OutroText(date string) string {
	return fmt.Sprintf("That's today's AI brief for %s! Follow for more insights. 💡 #AICommunity", date)
}

// itemBody は見出し・要約・リンク・ハッシュタグを空行区切りで連結する
func itemBody(headline, summary, link, tags string) string {
	return strings.Join([]string{headline, summary, link, tags}, "\n\n")
}

// FitPost はニュース1件を280文字以内の投稿本文にする
//
// 【アルゴリズム】（長さはNFC正規化後のコードポイント数）
//  1. 本文が280文字以内ならそのまま（バイト列も変更しない）
//  2. 要約に使える文字数 avail = 280 - (見出し + リンク + タグ + 6) を求め、
//     要約を avail-3 文字に切って "..." を付けて組み直す
//  3. それでも超える場合（見出しやリンク自体が長すぎる）は、
//     本文全体を277文字に切って "..." を付ける（構造は保持しない）
//
// 正規化した文字列を使うのは 2 と 3 の切り詰め時のみ。
func FitPost(item NewsItem) string {
	body := itemBody(item.Headline, item.Summary, item.Link, item.HashtagString())
	if runeLen(norm.NFC.String(body)) <= MaxPostLength {
		return body
	}

	headline := norm.NFC.String(item.Headline)
	summary := norm.NFC.String(item.Summary)
	link := norm.NFC.String(item.Link)
	tags := norm.NFC.String(item.HashtagString())

	avail := MaxPostLength - (runeLen(headline) + runeLen(link) + runeLen(tags) + separatorAllowance)
	if runeLen(summary) > avail-len(ellipsis) {
		summary = truncateRunes(summary, avail-len(ellipsis)) + ellipsis
	}
	body = itemBody(headline, summary, link, tags)

	if runeLen(body) > MaxPostLength {
		body = truncateRunes(body, MaxPostLength-len(ellipsis)) + ellipsis
	}
	return body
}
