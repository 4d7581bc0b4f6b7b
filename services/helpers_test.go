package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"jirascraper/config"
	"jirascraper/models"
)

type searchCall struct {
	Project    string
	StartAt    int
	MaxResults int
}

// fakeSearcher はプロジェクトごとのイシュー一覧からページを切り出します
type fakeSearcher struct {
	issues map[string][]json.RawMessage
	// totals が設定されていればレスポンスの total を上書きする
	totals map[string]int
	// failAt の呼び出し回数目でエラーを返す (1始まり、0は無効)
	failAt int
	err    error
	calls  []searchCall
}

func (f *fakeSearcher) Search(ctx context.Context, project string, startAt, maxResults int) (*models.SearchResponse, error) {
	f.calls = append(f.calls, searchCall{project, startAt, maxResults})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, f.err
	}

	all := f.issues[project]
	total := len(all)
	if t, ok := f.totals[project]; ok {
		total = t
	}

	end := min(startAt+maxResults, len(all))
	var page []json.RawMessage
	if startAt < len(all) {
		page = all[startAt:end]
	}
	return &models.SearchResponse{StartAt: startAt, MaxResults: maxResults, Total: total, Issues: page}, nil
}

// memoryStore はメモリ上のカーソルストアで、保存履歴を記録します
type memoryStore struct {
	cursor models.Cursor
	saved  []models.Cursor
	err    error
}

func (m *memoryStore) Load() (models.Cursor, error) {
	return m.cursor, nil
}

func (m *memoryStore) Save(cursor models.Cursor) error {
	if m.err != nil {
		return m.err
	}
	m.cursor = cursor
	m.saved = append(m.saved, cursor)
	return nil
}

// memorySink はメモリ上の出力先です
type memorySink struct {
	batches [][]models.Record
	err     error
}

func (m *memorySink) Append(records []models.Record) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *memorySink) ids() []string {
	var ids []string
	for _, batch := range m.batches {
		for _, r := range batch {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func issueJSON(t testing.TB, key, summary string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"key": key,
		"fields": map[string]any{
			"summary":     summary,
			"description": "description of " + key,
			"status":      map[string]any{"name": "Open"},
			"priority":    map[string]any{"name": "Major"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func issuesFor(t testing.TB, project string, n int) []json.RawMessage {
	t.Helper()
	issues := make([]json.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		key := fmt.Sprintf("%s-%d", project, i)
		issues = append(issues, issueJSON(t, key, "summary "+key))
	}
	return issues
}

func testConfig(projects []string, pageSize int) *config.Config {
	return &config.Config{
		JiraURL:  "https://jira.example.com",
		Projects: projects,
		PageSize: pageSize,
	}
}
