// =============================================================================
// errors.go - エラー分類
// =============================================================================
//
// サイクル内で発生するエラーはすべて以下のセンチネルでラップされる。
// 呼び出し側は errors.Is / errors.As で分類し、ログ出力に使う。
//
//   ErrConfiguration     - 認証情報の不足（ステージごとに検出）
//   ErrInvalidInput      - Extractorへの入力が不正（APIは呼ばない）
//   ErrTransport         - HTTP/ネットワーク障害、APIエラー応答
//   ErrResponseShape     - APIは応答したが想定外の構造（ブロック等）
//   ErrParse             - モデルの出力がJSONとして解釈できない
//   ErrPlatformRejection - SNS APIが投稿を拒否
//
// =============================================================================
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTransport         = errors.New("transport error")
	ErrResponseShape     = errors.New("unexpected response shape")
	ErrParse             = errors.New("parse error")
	ErrPlatformRejection = errors.New("platform rejected post")
)

// RejectionKind はSNS APIの拒否理由の分類
type RejectionKind string

const (
	RejectUnauthorized RejectionKind = "unauthorized"
	RejectForbidden    RejectionKind = "forbidden"
	RejectDuplicate    RejectionKind = "duplicate_content"
	RejectRateLimited  RejectionKind = "rate_limited"
	RejectOther        RejectionKind = "other"
)

// PlatformError はSNS APIが返したエラー応答を保持する
//
// 【フィールド】
//
//	Status: HTTPステータスコード
//	Kind:   ステータスと詳細から判定した分類
//	Detail: レスポンスの "detail"（なければ "title"）
//	Errors: レスポンスの "errors" 配列のメッセージ
type PlatformError struct {
	Status int
	Kind   RejectionKind
	Detail string
	Errors []string
}

func (e *PlatformError) Error() string {
	msg := fmt.Sprintf("platform returned %d (%s)", e.Status, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.Errors) > 0 {
		msg += " [" + strings.Join(e.Errors, "; ") + "]"
	}
	return msg
}

// Unwrap により errors.Is(err, ErrPlatformRejection) が成立する
func (e *PlatformError) Unwrap() error {
	return ErrPlatformRejection
}

// classifyRejection はHTTPステータスと詳細メッセージから拒否理由を判定する
//
// 403は権限不足・レート制限・重複投稿のいずれでも返るため、
// 詳細に "duplicate content" が含まれる場合のみ重複として扱う。
func classifyRejection(status int, detail string) RejectionKind {
	switch status {
	case 401:
		return RejectUnauthorized
	case 403:
		if strings.Contains(strings.ToLower(detail), "duplicate content") {
			return RejectDuplicate
		}
		return RejectForbidden
	case 429:
		return RejectRateLimited
	default:
		return RejectOther
	}
}
