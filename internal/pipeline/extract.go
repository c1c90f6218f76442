// =============================================================================
// extract.go - 生成AIによるニュース抽出
// =============================================================================
//
// 取得したマークアップと固定の指示文を生成AIに渡し、AI関連ニュース2〜3件を
// JSON配列で返させる。
//
// 【処理の流れ】
//  1. 入力チェック（空・不正なUTF-8ならAPIを呼ばずに失敗）
//  2. プロンプト構築（マークアップはそのまま埋め込む）
//  3. Generator 呼び出し（1サイクル1リクエスト、リトライなし）
//  4. 厳密なデコードと検証 → NewsBatch
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Generator は生成AI APIの抽象
//
// 実装は応答のテキスト部分だけを返す。APIエラーは ErrTransport、
// 応答構造の異常は ErrResponseShape でラップすること。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor は抽出ステージ
type Extractor struct {
	gen Generator
	log *slog.Logger
}

// NewExtractor は Extractor を作成する
func NewExtractor(gen Generator, log *slog.Logger) *Extractor {
	if log == nil {
		log = discardLogger()
	}
	return &Extractor{
		gen: gen,
		log: log.With(slog.String("component", "extractor")),
	}
}

// Extract はマークアップからニュースを抽出する
func (e *Extractor) Extract(ctx context.Context, markup string) (NewsBatch, error) {
	if strings.TrimSpace(markup) == "" {
		e.log.Error("Markup is empty, not calling the model")
		return nil, fmt.Errorf("%w: markup is empty", ErrInvalidInput)
	}
	if !utf8.ValidString(markup) {
		e.log.Error("Markup is not valid UTF-8 text, not calling the model")
		return nil, fmt.Errorf("%w: markup is not valid UTF-8 text", ErrInvalidInput)
	}

	e.log.Info("Requesting structured news from model", slog.Int("markup_bytes", len(markup)))

	text, err := e.gen.Generate(ctx, BuildPrompt(markup))
	if err != nil {
		e.log.Error("Model request failed", slog.Any("error", err))
		return nil, err
	}

	batch, err := DecodeBatch(text, e.log)
	if err != nil {
		e.log.Error("Model output is not a JSON array",
			slog.Any("error", err),
			slog.String("raw", truncateString(text, 500)),
		)
		return nil, err
	}

	e.log.Info("News extracted", slog.Int("count", len(batch)))
	return batch, nil
}

// =============================================================================
// プロンプト
// =============================================================================

const promptTemplate = `
Analyze the following HTML document, which is the Techmeme homepage.
Identify the top 2 or 3 most significant news items related to Artificial Intelligence (AI), Machine Learning (ML), Large Language Models (LLMs), or major AI company news.
For each news item, provide: "headline" (concise, <70 chars), "summary" (brief, <150 chars), "link" (direct URL), and "hashtags" (array of 2-3 relevant strings).
Return ONLY a valid JSON array of objects. Each object must have keys "headline", "summary", "link", and "hashtags".
Example: [{"headline": "AI News", "summary": "Summary.", "link": "url", "hashtags": ["#AI"]}]
Do not include any text before or after the JSON array.
HTML DOCUMENT:
---BEGIN HTML---
%s
---END HTML---`

// BuildPrompt は指示文にマークアップをそのまま埋め込む
func BuildPrompt(markup string) string {
	return fmt.Sprintf(promptTemplate, markup)
}

// =============================================================================
// デコード・検証
// =============================================================================

// DecodeBatch はモデル出力をNewsBatchに変換する
//
// 【ルール】
//   - 全体がJSON配列でなければ ErrParse
//   - headline / summary / link が文字列で存在しない要素は捨てる（WARNログ）
//   - hashtags が文字列配列でなければ空として扱う
//
// 空配列 "[]" は正常（ニュースなし）。
func DecodeBatch(text string, log *slog.Logger) (NewsBatch, error) {
	if log == nil {
		log = discardLogger()
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	batch := make(NewsBatch, 0, len(raw))
	for i, msg := range raw {
		item, ok := decodeItem(msg)
		if !ok {
			log.Warn("Dropping invalid news item", slog.Int("index", i), slog.String("raw", truncateString(string(msg), 200)))
			continue
		}
		batch = append(batch, item)
	}
	return batch, nil
}

// decodeItem は1要素を検証付きでデコードする
func decodeItem(msg json.RawMessage) (NewsItem, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(msg, &obj); err != nil || obj == nil {
		return NewsItem{}, false
	}

	var item NewsItem
	for key, dst := range map[string]*string{
		"headline": &item.Headline,
		"summary":  &item.Summary,
		"link":     &item.Link,
	} {
		v, ok := obj[key]
		if !ok || !isJSONString(v) {
			return NewsItem{}, false
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return NewsItem{}, false
		}
	}

	item.Hashtags = decodeHashtags(obj["hashtags"])
	return item, true
}

// decodeHashtags は文字列の配列だけを受け付ける
//
// 配列でない、または文字列以外（null を含む）の要素があれば空として扱う。
func decodeHashtags(v json.RawMessage) []string {
	var elems []json.RawMessage
	if len(v) == 0 || json.Unmarshal(v, &elems) != nil {
		return []string{}
	}

	tags := make([]string, 0, len(elems))
	for _, e := range elems {
		var tag string
		if !isJSONString(e) || json.Unmarshal(e, &tag) != nil {
			return []string{}
		}
		tags = append(tags, tag)
	}
	return tags
}

func isJSONString(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '"'
}
