package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource(url string) *SourceConfig {
	return &SourceConfig{
		Kind:      SourceHTML,
		URL:       url,
		UserAgent: DefaultUserAgent,
		Timeout:   5 * time.Second,
	}
}

func TestHTTPFetcher_Fetch_Success(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>OpenAI ships</h1></body></html>"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(testSource(server.URL), logger)
	markup, err := f.Fetch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "<html><body><h1>OpenAI ships</h1></body></html>", markup)
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestHTTPFetcher_Fetch_Non200(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := NewHTTPFetcher(testSource(server.URL), logger)
	markup, err := f.Fetch(context.Background())

	require.ErrorIs(t, err, ErrTransport)
	assert.Empty(t, markup)
	assert.Contains(t, err.Error(), "unexpected status code 403")
}

func TestHTTPFetcher_Fetch_ContextCancelled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewHTTPFetcher(testSource(server.URL), logger)
	_, err := f.Fetch(ctx)

	assert.ErrorIs(t, err, ErrTransport)
}

func TestHTTPFetcher_Fetch_Compact(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	page := `<html><head><script>var x = 1;</script><style>h1{}</style></head>` +
		`<body><!-- ad slot --><h1><a href="https://example.com/a">Anthropic raises</a></h1>` +
		`<noscript>enable js</noscript></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	cfg := testSource(server.URL)
	cfg.Compact = true

	markup, err := NewHTTPFetcher(cfg, logger).Fetch(context.Background())
	require.NoError(t, err)

	assert.Contains(t, markup, `<a href="https://example.com/a">Anthropic raises</a>`)
	assert.NotContains(t, markup, "var x")
	assert.NotContains(t, markup, "h1{}")
	assert.NotContains(t, markup, "ad slot")
	assert.NotContains(t, markup, "enable js")
}

func TestFeedFetcher_Fetch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rss := `<?xml version="1.0"?>
	<rss version="2.0">
	<channel>
	<title>Techmeme</title>
	<item>
	<title>Google releases Gemini update</title>
	<link>https://example.com/gemini</link>
	<description>New model tiers.</description>
	<pubDate>Mon, 05 Jan 2026 12:00:00 GMT</pubDate>
	</item>
	<item>
	<title></title>
	<link>https://example.com/untitled</link>
	</item>
	</channel>
	</rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer server.Close()

	cfg := testSource(server.URL)
	cfg.Kind = SourceFeed

	f := NewFetcher(cfg, logger)
	require.IsType(t, &FeedFetcher{}, f)

	text, err := f.Fetch(context.Background())
	require.NoError(t, err)

	assert.Contains(t, text, "Feed: Techmeme")
	assert.Contains(t, text, "Title: Google releases Gemini update")
	assert.Contains(t, text, "Link: https://example.com/gemini")
	assert.Contains(t, text, "Published: 2026-01-05T12:00:00Z")
	assert.Contains(t, text, "Description: New model tiers.")
	assert.NotContains(t, text, "untitled")
}

func TestFeedFetcher_Fetch_InvalidFeed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a feed"))
	}))
	defer server.Close()

	cfg := testSource(server.URL)
	cfg.Kind = SourceFeed

	_, err := NewFeedFetcher(cfg, logger).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}
