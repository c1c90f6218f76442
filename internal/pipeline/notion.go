// =============================================================================
// notion.go - Notionアーカイブ
// =============================================================================
//
// 投稿に成功したニュースを既存のNotionデータベースへ1件1ページで記録する。
// NOTION_TOKEN と NOTION_DATABASE_ID が両方設定されている場合のみ有効。
//
// 【データベースのプロパティ】
//
//	Headline (title) / Summary (rich_text) / Link (url) /
//	Hashtags (multi_select) / Thread (rich_text) / Posted (date)
//
// アーカイブは記録専用で、ボットが読み戻すことはない。
// データベースが未作成の場合は CreateNotionDatabase（CLIの --notion-setup）で
// NOTION_PAGE_ID の下に作成できる。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// notionTextLimit はrich_text 1要素あたりの上限
const notionTextLimit = 2000

// Archiver は投稿済みバッチの記録先
type Archiver interface {
	Archive(ctx context.Context, batch NewsBatch, threadID string) error
}

// pageCreator は notionapi.PageService のうち使用する部分
type pageCreator interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// NotionArchiver は Archiver のNotion実装
type NotionArchiver struct {
	pages pageCreator
	dbID  notionapi.DatabaseID
	now   func() time.Time
	log   *slog.Logger
}

// NewNotionArchiver は NotionArchiver を作成する
func NewNotionArchiver(cfg *NotionConfig, log *slog.Logger) (*NotionArchiver, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: NOTION_TOKEN is required", ErrConfiguration)
	}
	if cfg.DatabaseID == "" {
		return nil, fmt.Errorf("%w: NOTION_DATABASE_ID is required", ErrConfiguration)
	}
	client := notionapi.NewClient(notionapi.Token(cfg.Token))
	return newNotionArchiver(client.Page, notionapi.DatabaseID(cfg.DatabaseID), log), nil
}

func newNotionArchiver(pages pageCreator, dbID notionapi.DatabaseID, log *slog.Logger) *NotionArchiver {
	if log == nil {
		log = discardLogger()
	}
	return &NotionArchiver{
		pages: pages,
		dbID:  dbID,
		now:   time.Now,
		log:   log.With(slog.String("component", "notion")),
	}
}

// Archive はバッチの各ニュースをページとして作成する
//
// 失敗したページがあっても残りは続行し、最後にまとめてエラーを返す。
func (a *NotionArchiver) Archive(ctx context.Context, batch NewsBatch, threadID string) error {
	posted := notionapi.Date(a.now())
	var failed []string

	for _, item := range batch {
		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: a.dbID,
			},
			Properties: newsProperties(item, threadID, posted),
		}
		if _, err := a.pages.Create(ctx, req); err != nil {
			a.log.Warn("Failed to archive item", slog.String("headline", item.Headline), slog.Any("error", err))
			failed = append(failed, item.Headline)
			continue
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to archive %d/%d items: %s", len(failed), len(batch), strings.Join(failed, " | "))
	}
	a.log.Info("Batch archived", slog.Int("count", len(batch)), slog.String("thread_id", threadID))
	return nil
}

// =============================================================================
// データベース作成
// =============================================================================

// databaseCreator は notionapi.DatabaseService のうち使用する部分
type databaseCreator interface {
	Create(ctx context.Context, req *notionapi.DatabaseCreateRequest) (*notionapi.Database, error)
}

// CreateNotionDatabase は親ページの下にアーカイブ用データベースを作成し、IDを返す
func CreateNotionDatabase(ctx context.Context, cfg *NotionConfig, log *slog.Logger) (string, error) {
	if cfg.Token == "" {
		return "", fmt.Errorf("%w: NOTION_TOKEN is required", ErrConfiguration)
	}
	if cfg.PageID == "" {
		return "", fmt.Errorf("%w: NOTION_PAGE_ID is required to create a new database", ErrConfiguration)
	}
	client := notionapi.NewClient(notionapi.Token(cfg.Token))
	return createNewsDatabase(ctx, client.Database, notionapi.PageID(cfg.PageID), log)
}

func createNewsDatabase(ctx context.Context, dbs databaseCreator, pageID notionapi.PageID, log *slog.Logger) (string, error) {
	if log == nil {
		log = discardLogger()
	}

	req := &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: pageID,
		},
		Title: richText("AI News Relay Archive"),
		Properties: notionapi.PropertyConfigs{
			"Headline": notionapi.TitlePropertyConfig{
				Type: notionapi.PropertyConfigTypeTitle,
			},
			"Summary": notionapi.RichTextPropertyConfig{
				Type: notionapi.PropertyConfigTypeRichText,
			},
			"Link": notionapi.URLPropertyConfig{
				Type: notionapi.PropertyConfigTypeURL,
			},
			"Hashtags": notionapi.MultiSelectPropertyConfig{
				Type: notionapi.PropertyConfigTypeMultiSelect,
				MultiSelect: notionapi.Select{
					Options: []notionapi.Option{
						{Name: "#AI", Color: notionapi.ColorBlue},
						{Name: "#ML", Color: notionapi.ColorGreen},
						{Name: "#LLM", Color: notionapi.ColorPurple},
					},
				},
			},
			"Thread": notionapi.RichTextPropertyConfig{
				Type: notionapi.PropertyConfigTypeRichText,
			},
			"Posted": notionapi.DatePropertyConfig{
				Type: notionapi.PropertyConfigTypeDate,
			},
		},
	}

	db, err := dbs.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create Notion database: %w", err)
	}

	id := string(db.ID)
	log.Info("Notion database created", slog.String("database_id", id), slog.String("url", "https://notion.so/"+id))
	return id, nil
}

// newsProperties はNewsItemをページのプロパティに変換する
func newsProperties(item NewsItem, threadID string, posted notionapi.Date) notionapi.Properties {
	tags := make([]notionapi.Option, 0, len(item.Hashtags))
	for _, t := range item.Hashtags {
		// multi_select の名前にカンマは使えない
		name := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if name != "" {
			tags = append(tags, notionapi.Option{Name: name})
		}
	}

	return notionapi.Properties{
		"Headline": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(item.Headline),
		},
		"Summary": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(item.Summary),
		},
		"Link": notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  item.Link,
		},
		"Hashtags": notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: tags,
		},
		"Thread": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(threadID),
		},
		"Posted": notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &posted},
		},
	}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: truncateString(s, notionTextLimit)}},
	}
}
