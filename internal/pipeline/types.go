// =============================================================================
// types.go - データ構造定義
// =============================================================================
//
// このファイルはボット全体で使用するデータ構造（型）を定義します。
//
// 【このファイルで定義している型】
//   - NewsItem:    モデルが抽出したAIニュース1件
//   - NewsBatch:   1サイクル分のNewsItem（0〜3件）
//   - CycleReport: 1サイクルの実行結果
//
// NewsBatchはサイクルごとに新しく作られ、投稿後に破棄される。
// サイクル間で保持される状態はない。
//
// =============================================================================
package pipeline

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// NewsItem - AIニュース1件
// -----------------------------------------------------------------------------
//
// 【フィールドの説明】
//
//	Headline: 見出し（目安70文字未満、強制しない）
//	Summary:  要約（目安150文字未満、強制しない）
//	Link:     記事URL（存在チェックのみ）
//	Hashtags: ハッシュタグ（空でもよい）
type NewsItem struct {
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Link     string   `json:"link"`
	Hashtags []string `json:"hashtags"`
}

// HashtagString はハッシュタグを半角スペース区切りで連結する
func (n NewsItem) HashtagString() string {
	return strings.Join(n.Hashtags, " ")
}

// NewsBatch は1サイクル分のニュース（プロンプト上は2〜3件）
type NewsBatch []NewsItem

// -----------------------------------------------------------------------------
// CycleReport - サイクル実行結果
// -----------------------------------------------------------------------------

// Stage はサイクルがどこまで進んだかを表す
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StagePublish Stage = "publish"
	StageDone    Stage = "done"
)

// CycleReport は RunCycle の結果
//
// Err が nil で Posted が 0 の場合は「ニュースなし」で正常終了したことを示す。
type CycleReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Stage      Stage  // 最後に到達したステージ
	Items      int    // 抽出されたニュース件数
	Posted     int    // 投稿に成功した件数（イントロ・アウトロ含む）
	ThreadID   string // イントロ投稿のID
	Err        error
}

// Failed はいずれかのステージが失敗したかを返す
func (r CycleReport) Failed() bool {
	return r.Err != nil
}
