// =============================================================================
// cycle.go - 1サイクルの実行
// =============================================================================
//
// 取得 → 抽出 → 投稿 を順番に1回ずつ実行する。
//
// 【処理の流れ】
//
//	Fetch ──失敗──▶ 終了（抽出・投稿は呼ばない）
//	  │
//	Extract ──失敗──▶ 終了
//	  │
//	  ├─ 0件 ──▶ 終了（ニュースなし。失敗ではない）
//	  │
//	Publish ──失敗──▶ 終了（投稿済みのものはそのまま）
//	  │
//	Archive（任意。失敗してもサイクルは成功）
//
// 【呼び出し側への約束】
//   RunCycle はエラーを返さず、panicも外に出さない。結果はすべて
//   CycleReport に記録する。繰り返し実行はこのパッケージの外（CLIの
//   --interval や EventBridge）が担当する。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Bot は1サイクル分のステージを束ねたもの
type Bot struct {
	fetcher   MarkupFetcher
	extractor *Extractor
	publisher *Publisher
	archiver  Archiver
	notifier  Notifier
	now       func() time.Time
	log       *slog.Logger
}

// BotOption は Bot のオプション
type BotOption func(*Bot)

// WithArchiver は投稿後の記録先を設定する
func WithArchiver(a Archiver) BotOption {
	return func(b *Bot) { b.archiver = a }
}

// WithNotifier は失敗時の通知先を設定する
func WithNotifier(n Notifier) BotOption {
	return func(b *Bot) { b.notifier = n }
}

// NewBot は設定から各ステージを組み立てる
//
// DryRun の場合はXへ投稿せず LogPoster を使う。
// Notion・メールは設定が揃っている場合のみ有効にする。
func NewBot(cfg *Config, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = discardLogger()
	}

	var poster Poster
	if cfg.DryRun {
		log.Info("Dry run enabled, posts will only be logged")
		poster = NewLogPoster(log)
	} else {
		poster = NewXClient(&cfg.Twitter)
	}

	var opts []BotOption
	if cfg.Notion.Enabled() {
		archiver, err := NewNotionArchiver(&cfg.Notion, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithArchiver(archiver))
	}
	if cfg.Email.Enabled() {
		notifier, err := NewEmailNotifier(&cfg.Email)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithNotifier(notifier))
	}

	return newBot(
		NewFetcher(&cfg.Source, log),
		NewExtractor(NewGeminiGenerator(&cfg.Gemini, log), log),
		NewPublisher(poster, cfg.Twitter.PostDelay, log),
		log,
		opts...,
	), nil
}

func newBot(f MarkupFetcher, e *Extractor, p *Publisher, log *slog.Logger, opts ...BotOption) *Bot {
	if log == nil {
		log = discardLogger()
	}
	b := &Bot{
		fetcher:   f,
		extractor: e,
		publisher: p,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RunCycle は取得・抽出・投稿を1回実行する
func (b *Bot) RunCycle(ctx context.Context) (report CycleReport) {
	report = CycleReport{
		RunID:     uuid.NewString(),
		StartedAt: b.now(),
		Stage:     StageFetch,
	}
	log := b.log.With(slog.String("run_id", report.RunID))

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("panic in %s stage: %v", report.Stage, r)
			log.Error("Cycle panicked", slog.String("stage", string(report.Stage)), slog.Any("panic", r))
		}
		report.FinishedAt = b.now()
		b.finish(ctx, log, report)
	}()

	log.Info("Cycle started")

	// 1. 取得
	markup, err := b.fetcher.Fetch(ctx)
	if err != nil {
		report.Err = err
		return report
	}

	// 2. 抽出
	report.Stage = StageExtract
	batch, err := b.extractor.Extract(ctx, markup)
	if err != nil {
		report.Err = err
		return report
	}
	report.Items = len(batch)
	if len(batch) == 0 {
		report.Stage = StageDone
		return report
	}

	// 3. 投稿
	report.Stage = StagePublish
	res, err := b.publisher.Publish(ctx, batch)
	report.Posted = len(res.PostIDs)
	report.ThreadID = res.ThreadID
	if err != nil {
		report.Err = err
		return report
	}
	report.Stage = StageDone

	// 4. 記録（任意）
	if b.archiver != nil {
		if err := b.archiver.Archive(ctx, batch, res.ThreadID); err != nil {
			log.Warn("Archive failed", slog.Any("error", err))
		}
	}
	return report
}

// finish は結果をログに出し、失敗時は通知する
func (b *Bot) finish(ctx context.Context, log *slog.Logger, r CycleReport) {
	log = log.With(
		slog.String("stage", string(r.Stage)),
		slog.Int("items", r.Items),
		slog.Int("posted", r.Posted),
		slog.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	)

	if !r.Failed() {
		if r.Items == 0 {
			log.Info("Cycle finished with no news to post")
		} else {
			log.Info("Cycle finished", slog.String("thread_id", r.ThreadID))
		}
		return
	}

	log.Error("Cycle ended early", slog.Any("error", r.Err))
	if b.notifier == nil {
		return
	}
	if err := b.notify(ctx, r); err != nil {
		log.Warn("Failure notification not sent", slog.Any("error", err))
	}
}

// notify は通知先のpanicもエラーとして返す
func (b *Bot) notify(ctx context.Context, r CycleReport) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panicked: %v", p)
		}
	}()
	return b.notifier.NotifyFailure(ctx, r)
}
