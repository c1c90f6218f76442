// =============================================================================
// main.go - AI News Relay のエントリーポイント（CLI）
// =============================================================================
//
// ニュースページを取得し、生成AIでAI関連ニュースを抽出して、
// X (Twitter) にスレッドとして投稿するCLIツールです。
//
// =============================================================================
// 【処理フロー】（1サイクル）
// =============================================================================
//
//   ┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//   │  1. 取得    │ -> │  2. 抽出    │ -> │  3. 投稿    │
//   │  HTTP GET   │    │  Gemini API │    │  X API v2   │
//   └─────────────┘    └─────────────┘    └─────────────┘
//          │                  │                  │
//          v                  v                  v
//   Techmeme の HTML     JSON配列で         イントロ + 各ニュース
//   （またはフィード）   2〜3件を返させる   + アウトロ のスレッド
//
// =============================================================================
// 【実行例】
// =============================================================================
//
//   ./pipeline                         1サイクル実行して終了
//   ./pipeline --dry-run               投稿せずにスレッド内容をログに出す
//   ./pipeline --interval 6h           6時間ごとに繰り返す（Ctrl+Cで停止）
//   ./pipeline --notion-setup          Notionにアーカイブ用DBを作成して終了
//   ./pipeline --help                  全フラグと環境変数を表示
//
// - 設定はフラグか環境変数（.env も可）で渡す
// - ログは標準エラー出力、サイクル結果のJSONは標準出力
// - サイクルの失敗で終了コードは変わらない（結果JSONの error を見る）
//
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv" // .env ファイル読み込み

	"ai-news-relay/internal/pipeline"
)

// reportJSON は標準出力に書くサイクル結果
type reportJSON struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Stage      string    `json:"stage"`
	Items      int       `json:"items"`
	Posted     int       `json:"posted"`
	ThreadID   string    `json:"threadId,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func main() {
	// .env がなくても環境変数だけで続行する
	envErr := godotenv.Load()

	cfg, err := pipeline.Load(os.Args[1:])
	if err != nil {
		reportLoadError(os.Stderr, err)
		os.Exit(2)
	}
	if cfg == nil {
		return // --help
	}

	log := pipeline.NewLogger(cfg.LogLevel, os.Stderr)
	if envErr != nil {
		log.Debug(".env file not loaded, using environment variables only", slog.Any("error", envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NotionSetup {
		id, err := pipeline.CreateNotionDatabase(ctx, &cfg.Notion, log)
		if err != nil {
			log.Error("Notion setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("NOTION_DATABASE_ID=%s\n", id)
		return
	}

	bot, err := pipeline.NewBot(cfg, log)
	if err != nil {
		log.Error("Failed to initialize bot", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Interval <= 0 {
		writeReport(bot.RunCycle(ctx))
		return
	}

	// --- 定期実行モード ---
	log.Info("Running on interval", slog.Duration("interval", cfg.Interval))
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		writeReport(bot.RunCycle(ctx))

		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			return
		case <-ticker.C:
		}
	}
}

// writeReport はサイクル結果を1行のJSONとして標準出力に書く
func writeReport(r pipeline.CycleReport) {
	out := reportJSON{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Stage:      string(r.Stage),
		Items:      r.Items,
		Posted:     r.Posted,
		ThreadID:   r.ThreadID,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
	}
}

// reportLoadError は設定エラーを書き出す
//
// go-flags の解析エラーは go-flags 自身が出力済みなので書かない。
func reportLoadError(w io.Writer, err error) {
	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) {
		return
	}
	fmt.Fprintln(w, err)
}
