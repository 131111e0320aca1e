package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedloft/app/model"
)

func articlePage() string {
	paragraph := strings.Repeat("Container orchestration schedules workloads across a fleet of machines and restarts them when they fail. ", 8)
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Orchestration Notes</title></head><body>")
	b.WriteString("<nav><a href=\"/\">home</a></nav><article><h1>Orchestration Notes</h1>")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "<p>%s</p>", paragraph)
	}
	b.WriteString("<script>alert('tracking')</script></article></body></html>")
	return b.String()
}

func newArticleImporter(summarizer *HierarchicalSummarizer) *ArticleImporter {
	return NewArticleImporter(&http.Client{}, NewSanitizer(), summarizer, "feedloft/1.0", 5*time.Second)
}

func TestArticleImporterExtractsMarkdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articlePage())
	}))
	defer server.Close()

	item := model.FeedItem{
		ID:   model.NewFeedItemID(),
		Type: model.FeedItemTypeArticle,
		URL:  server.URL + "/post",
	}

	result, err := newArticleImporter(nil).Import(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, result.Update.Content)
	assert.Contains(t, *result.Update.Content, "Container orchestration")
	assert.NotContains(t, *result.Update.Content, "<p>", "content must be markdown, not html")
	assert.NotContains(t, *result.Update.Content, "alert(", "scripts must be stripped")
	require.NotNil(t, result.Update.Title)
	assert.Contains(t, *result.Update.Title, "Orchestration Notes")
	assert.False(t, result.Refetch)
}

func TestArticleImporterWebsiteRequestsRefetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articlePage())
	}))
	defer server.Close()

	item := model.FeedItem{
		ID:   model.NewFeedItemID(),
		Type: model.FeedItemTypeWebsite,
		URL:  server.URL,
	}

	result, err := newArticleImporter(nil).Import(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, result.Refetch, "websites are re-fetched on a schedule")
}

func TestArticleImporterAttachesSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articlePage())
	}))
	defer server.Close()

	gen := &fakeGenerator{}
	item := model.FeedItem{ID: model.NewFeedItemID(), Type: model.FeedItemTypeArticle, URL: server.URL}

	result, err := newArticleImporter(NewHierarchicalSummarizer(gen)).Import(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, result.Update.Summary)
	assert.Equal(t, "stage-3-output", *result.Update.Summary)
	assert.Len(t, gen.prompts, 3)
}

func TestArticleImporterSummaryFailureDoesNotFailImport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articlePage())
	}))
	defer server.Close()

	gen := &fakeGenerator{failAt: 1}
	item := model.FeedItem{ID: model.NewFeedItemID(), Type: model.FeedItemTypeArticle, URL: server.URL}

	result, err := newArticleImporter(NewHierarchicalSummarizer(gen)).Import(context.Background(), item)
	require.NoError(t, err)
	assert.Nil(t, result.Update.Summary)
	assert.NotNil(t, result.Update.Content)
}

func TestArticleImporterRejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	}))
	defer server.Close()

	item := model.FeedItem{ID: model.NewFeedItemID(), Type: model.FeedItemTypeArticle, URL: server.URL}

	_, err := newArticleImporter(nil).Import(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content type is not HTML")
}

func TestArticleImporterHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	item := model.FeedItem{ID: model.NewFeedItemID(), Type: model.FeedItemTypeArticle, URL: server.URL}

	_, err := newArticleImporter(nil).Import(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestArticleImporterSendsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articlePage())
	}))
	defer server.Close()

	item := model.FeedItem{ID: model.NewFeedItemID(), Type: model.FeedItemTypeArticle, URL: server.URL}

	_, err := newArticleImporter(nil).Import(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "feedloft/1.0", gotUA)
}
