package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePages は作成リクエストを記録する pageCreator
type fakePages struct {
	reqs    []*notionapi.PageCreateRequest
	failFor string
}

func (f *fakePages) Create(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.reqs = append(f.reqs, req)
	title := req.Properties["Headline"].(notionapi.TitleProperty).Title[0].Text.Content
	if title == f.failFor {
		return nil, errors.New("validation_error")
	}
	return &notionapi.Page{ID: notionapi.ObjectID("page-" + title)}, nil
}

func TestNotionArchiver_Archive(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pages := &fakePages{}

	a := newNotionArchiver(pages, "db-123", logger)
	a.now = func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) }

	batch := NewsBatch{
		{Headline: "H1", Summary: "S1", Link: "https://example.com/1", Hashtags: []string{"#AI", "#Big,Tech"}},
		{Headline: "H2", Summary: "S2", Link: "https://example.com/2", Hashtags: []string{}},
	}

	require.NoError(t, a.Archive(context.Background(), batch, "thread-1"))
	require.Len(t, pages.reqs, 2)

	req := pages.reqs[0]
	assert.Equal(t, notionapi.ParentTypeDatabaseID, req.Parent.Type)
	assert.Equal(t, notionapi.DatabaseID("db-123"), req.Parent.DatabaseID)

	props := req.Properties
	assert.Equal(t, "H1", props["Headline"].(notionapi.TitleProperty).Title[0].Text.Content)
	assert.Equal(t, "S1", props["Summary"].(notionapi.RichTextProperty).RichText[0].Text.Content)
	assert.Equal(t, "https://example.com/1", props["Link"].(notionapi.URLProperty).URL)
	assert.Equal(t, "thread-1", props["Thread"].(notionapi.RichTextProperty).RichText[0].Text.Content)

	tags := props["Hashtags"].(notionapi.MultiSelectProperty).MultiSelect
	require.Len(t, tags, 2)
	assert.Equal(t, "#AI", tags[0].Name)
	assert.Equal(t, "#BigTech", tags[1].Name)

	posted := props["Posted"].(notionapi.DateProperty).Date.Start
	require.NotNil(t, posted)
	assert.True(t, time.Time(*posted).Equal(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)))
}

func TestNotionArchiver_Archive_PartialFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pages := &fakePages{failFor: "H1"}

	a := newNotionArchiver(pages, "db-123", logger)
	err := a.Archive(context.Background(), NewsBatch{
		{Headline: "H1", Summary: "S1", Link: "L1"},
		{Headline: "H2", Summary: "S2", Link: "L2"},
	}, "thread-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1/2")
	assert.Len(t, pages.reqs, 2)
}

func TestNewsProperties_TruncatesLongText(t *testing.T) {
	props := newsProperties(NewsItem{
		Headline: "H",
		Summary:  strings.Repeat("s", 2500),
		Link:     "L",
	}, "t", notionapi.Date(time.Now()))

	content := props["Summary"].(notionapi.RichTextProperty).RichText[0].Text.Content
	assert.Equal(t, notionTextLimit, runeLen(content))
}

func TestNewNotionArchiver_RequiresConfig(t *testing.T) {
	_, err := NewNotionArchiver(&NotionConfig{Token: "secret"}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

type fakeDatabases struct {
	req *notionapi.DatabaseCreateRequest
}

func (f *fakeDatabases) Create(_ context.Context, req *notionapi.DatabaseCreateRequest) (*notionapi.Database, error) {
	f.req = req
	return &notionapi.Database{ID: "db-new"}, nil
}

func TestCreateNewsDatabase(t *testing.T) {
	dbs := &fakeDatabases{}

	id, err := createNewsDatabase(context.Background(), dbs, "parent-page", nil)

	require.NoError(t, err)
	assert.Equal(t, "db-new", id)
	require.NotNil(t, dbs.req)
	assert.Equal(t, notionapi.PageID("parent-page"), dbs.req.Parent.PageID)
	for _, name := range []string{"Headline", "Summary", "Link", "Hashtags", "Thread", "Posted"} {
		assert.Contains(t, dbs.req.Properties, name)
	}
}

func TestCreateNotionDatabase_RequiresPage(t *testing.T) {
	_, err := CreateNotionDatabase(context.Background(), &NotionConfig{Token: "secret"}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}
