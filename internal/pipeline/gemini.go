// =============================================================================
// gemini.go - Gemini API クライアント
// =============================================================================
//
// google.golang.org/genai を使用して generateContent を1回呼び出す。
//
// 【リクエスト設定】
//   - セーフティ: ハラスメント / ヘイト / 性的 / 危険 の4カテゴリを
//     すべて BLOCK_MEDIUM_AND_ABOVE に設定
//   - 出力形式: application/json
//
// 【エラーの扱い】
//   - APIキーなし          → ErrConfiguration（ネットワークには出ない）
//   - APIエラー応答/通信失敗 → ErrTransport（HTTPコードとステータスを含める）
//   - 候補なし・ブロック    → ErrResponseShape（ブロック理由を含める）
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// safetyCategories はブロック設定を適用するカテゴリ
var safetyCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// GeminiGenerator は Generator の Gemini 実装
type GeminiGenerator struct {
	cfg    *GeminiConfig
	client *genai.Client
	log    *slog.Logger
}

// NewGeminiGenerator は GeminiGenerator を作成する
//
// クライアントは最初の Generate 呼び出し時に作成する。APIキーの不足は
// 抽出ステージの失敗として扱い、プロセスは止めない。
func NewGeminiGenerator(cfg *GeminiConfig, log *slog.Logger) *GeminiGenerator {
	if log == nil {
		log = discardLogger()
	}
	return &GeminiGenerator{
		cfg: cfg,
		log: log.With(slog.String("component", "gemini")),
	}
}

// generateConfig はリクエスト設定を返す
func generateConfig() *genai.GenerateContentConfig {
	settings := make([]*genai.SafetySetting, 0, len(safetyCategories))
	for _, c := range safetyCategories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		})
	}
	return &genai.GenerateContentConfig{
		SafetySettings:   settings,
		ResponseMIMEType: "application/json",
	}
}

func (g *GeminiGenerator) ensureClient(ctx context.Context) error {
	if g.client != nil {
		return nil
	}
	if err := g.cfg.Validate(); err != nil {
		return err
	}

	cc := &genai.ClientConfig{
		APIKey:     g.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(g.cfg.Timeout),
	}
	if g.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return fmt.Errorf("%w: failed to create Gemini client: %v", ErrConfiguration, err)
	}
	g.client = client
	return nil
}

// Generate はプロンプトを送信し、応答テキストを返す
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.ensureClient(ctx); err != nil {
		return "", err
	}

	g.log.Debug("Sending generateContent request", slog.String("model", g.cfg.Model), slog.Int("prompt_bytes", len(prompt)))

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), generateConfig())
	if err != nil {
		return "", transportError(err)
	}

	return responseText(resp)
}

// transportError はSDKのエラーを ErrTransport でラップする
//
// APIエラー応答の場合はHTTPコードとステータスをメッセージに含める。
func transportError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: Gemini API error %d %s: %s", ErrTransport, apiErr.Code, apiErr.Status, apiErr.Message)
	}
	return fmt.Errorf("%w: Gemini request failed: %v", ErrTransport, err)
}

// responseText は最初の候補からテキストパートを連結して返す
//
// 思考パート（Thought）は含めない。
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", ErrResponseShape)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates%s", ErrResponseShape, promptFeedback(resp))
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: candidate has no text (finish reason %q)%s", ErrResponseShape, cand.FinishReason, promptFeedback(resp))
	}
	return text, nil
}

// promptFeedback はブロック理由をエラーメッセージ用に整形する
func promptFeedback(resp *genai.GenerateContentResponse) string {
	fb := resp.PromptFeedback
	if fb == nil || fb.BlockReason == "" {
		return ""
	}
	msg := fmt.Sprintf(" (prompt blocked: %s", fb.BlockReason)
	if fb.BlockReasonMessage != "" {
		msg += ", " + fb.BlockReasonMessage
	}
	return msg + ")"
}
