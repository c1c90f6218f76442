// =============================================================================
// twitter.go - X (Twitter) API v2 クライアント
// =============================================================================
//
// POST /2/tweets で投稿・返信を行う。認証は OAuth 1.0a ユーザーコンテキスト
// （APIキー/シークレット + アクセストークン/シークレット）で、署名は
// github.com/dghubble/oauth1 に任せる。
//
// 【リクエスト】
//
//	{"text": "...", "reply": {"in_reply_to_tweet_id": "123"}}
//
// 【レスポンス】
//
//	成功: {"data": {"id": "456", "text": "..."}}
//	失敗: {"title": "...", "detail": "...", "status": 403, "errors": [...]}
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dghubble/oauth1"
)

// XClient は Poster の X API 実装
type XClient struct {
	cfg  *TwitterConfig
	base *http.Client
}

// NewXClient は XClient を作成する
//
// 認証情報は Post 時に検証する（不足していても起動は止めない）。
func NewXClient(cfg *TwitterConfig) *XClient {
	return &XClient{
		cfg:  cfg,
		base: newHTTPClient(cfg.Timeout),
	}
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *tweetReply `json:"reply,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"errors"`
}

// Post は投稿を作成し、そのIDを返す
func (c *XClient) Post(ctx context.Context, text, replyTo string) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", err
	}

	body := tweetRequest{Text: text}
	if replyTo != "" {
		body.Reply = &tweetReply{InReplyToTweetID: replyTo}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/2/tweets", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient(ctx).Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: X API request failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read X API response: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 300 {
		return "", parsePlatformError(resp.StatusCode, respBody)
	}

	var tr tweetResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("%w: failed to parse X API response: %v", ErrResponseShape, err)
	}
	if tr.Data.ID == "" {
		return "", fmt.Errorf("%w: X API response has no post id", ErrResponseShape)
	}
	return tr.Data.ID, nil
}

// httpClient は OAuth1 署名付きのHTTPクライアントを返す
func (c *XClient) httpClient(ctx context.Context) *http.Client {
	config := oauth1.NewConfig(c.cfg.APIKey, c.cfg.APISecret)
	token := oauth1.NewToken(c.cfg.AccessToken, c.cfg.AccessTokenSecret)
	// oauth1 はコンテキストに入れたクライアントの Transport を引き継ぐ
	ctx = context.WithValue(ctx, oauth1.HTTPClient, c.base)
	hc := config.Client(ctx, token)
	hc.Timeout = c.base.Timeout
	return hc
}

// parsePlatformError はエラー応答を PlatformError に変換する
func parsePlatformError(status int, body []byte) *PlatformError {
	pe := &PlatformError{Status: status}

	var ar apiErrorResponse
	if err := json.Unmarshal(body, &ar); err == nil {
		pe.Detail = ar.Detail
		if pe.Detail == "" {
			pe.Detail = ar.Title
		}
		for _, e := range ar.Errors {
			msg := e.Message
			if msg == "" {
				msg = e.Detail
			}
			if msg != "" {
				pe.Errors = append(pe.Errors, msg)
			}
		}
	} else if len(body) > 0 {
		pe.Detail = truncateString(string(body), 300)
	}

	pe.Kind = classifyRejection(status, pe.Detail)
	return pe
}

// =============================================================================
// LogPoster（ドライラン）
// =============================================================================

// LogPoster は投稿せずにログへ出力する Poster
//
// IDは "dry-run-1", "dry-run-2", ... と連番で発行する。
type LogPoster struct {
	log  *slog.Logger
	next int
}

// NewLogPoster は LogPoster を作成する
func NewLogPoster(log *slog.Logger) *LogPoster {
	if log == nil {
		log = discardLogger()
	}
	return &LogPoster{log: log.With(slog.String("component", "dry-run"))}
}

// Post はテキストをログに出し、擬似IDを返す
func (p *LogPoster) Post(ctx context.Context, text, replyTo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.next++
	id := "dry-run-" + strconv.Itoa(p.next)
	p.log.Info("Would post",
		slog.String("id", id),
		slog.String("reply_to", replyTo),
		slog.Int("length", runeLen(text)),
		slog.String("text", text),
	)
	return id, nil
}
