// =============================================================================
// Lambda: post-ai-news
// =============================================================================
//
// 1サイクル（取得 → 抽出 → スレッド投稿）を実行するLambda関数。
// EventBridge のスケジュールから呼び出す想定。
//
// 環境変数:
//   - GEMINI_API_KEY:              Gemini APIキー (必須)
//   - TWITTER_API_KEY:             X APIキー (必須)
//   - TWITTER_API_SECRET:          X APIシークレット (必須)
//   - TWITTER_ACCESS_TOKEN:        X アクセストークン (必須)
//   - TWITTER_ACCESS_TOKEN_SECRET: X アクセストークンシークレット (必須)
//   - SOURCE_URL:                  取得元 (デフォルト: https://www.techmeme.com/)
//   - NOTION_TOKEN:                Notion API Token (任意、アーカイブ用)
//   - NOTION_DATABASE_ID:          NotionデータベースID (任意)
//   - EMAIL_FROM:                  失敗通知メール送信元 (任意)
//   - EMAIL_PASSWORD:              Gmailアプリパスワード (任意)
//   - EMAIL_TO:                    失敗通知メール送信先 (任意)
//
// 認証情報が不足していてもハンドラーはエラーを返さない（そのサイクルが
// 失敗として記録されるだけ）。Lambdaの自動リトライで二重投稿しないため。
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"ai-news-relay/internal/pipeline"
)

// Response はLambdaレスポンス
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	RunID      string `json:"runId,omitempty"`
	Items      int    `json:"items"`
	Posted     int    `json:"posted"`
}

// Handler はLambdaのメインハンドラー
func Handler(ctx context.Context, event interface{}) (Response, error) {
	cfg, err := pipeline.Load(nil)
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}

	log := pipeline.NewLogger(cfg.LogLevel, os.Stderr)
	log.Info("Starting post-ai-news Lambda")

	bot, err := pipeline.NewBot(cfg, log)
	if err != nil {
		log.Error("Failed to initialize bot", slog.Any("error", err))
		return Response{StatusCode: 500, Message: err.Error()}, err
	}

	return toResponse(bot.RunCycle(ctx)), nil
}

// toResponse はサイクル結果をレスポンスに変換する
func toResponse(r pipeline.CycleReport) Response {
	resp := Response{
		StatusCode: 200,
		RunID:      r.RunID,
		Items:      r.Items,
		Posted:     r.Posted,
	}

	switch {
	case r.Failed():
		resp.StatusCode = 500
		resp.Message = fmt.Sprintf("cycle failed at %s: %v", r.Stage, r.Err)
	case r.Items == 0:
		resp.Message = "No AI news found"
	default:
		resp.Message = fmt.Sprintf("Posted %d news items as a %d-post thread", r.Items, r.Posted)
	}
	return resp
}

func main() {
	lambda.Start(Handler)
}
