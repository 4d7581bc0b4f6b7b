package models

import (
	"bytes"
	"encoding/json"
)

// Cursor はスクレイピングの再開位置を表します
type Cursor struct {
	SourceIndex int `json:"source_index"`
	Offset      int `json:"offset"`
}

// SearchResponse は検索APIのレスポンスです。イシューは個別にデコードするため生のまま保持します
type SearchResponse struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Issues     []json.RawMessage `json:"issues"`
}

// Page は1回のリクエストで取得したイシューの集合です
type Page struct {
	Project    string
	StartAt    int
	Total      int
	Issues     []json.RawMessage
	NextOffset int
	Last       bool
}

// Optional は欠落・null・型の不一致をすべて「値なし」として扱うフィールドです。
// 任意フィールドの型が想定と違ってもイシュー全体の解析は失敗しません。
type Optional[T any] struct {
	Value T
	Valid bool
}

// UnmarshalJSON は値を T として解析し、解析できなければ値なしとします
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	*o = Optional[T]{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil
	}
	o.Value = value
	o.Valid = true
	return nil
}

// Or は値があればその値を、なければ fallback を返します
func (o Optional[T]) Or(fallback T) T {
	if !o.Valid {
		return fallback
	}
	return o.Value
}

// RawIssue はJIRAのイシューです。key・fields・summary 以外は Optional で緩く解析します
type RawIssue struct {
	Key    *string      `json:"key"`
	Fields *IssueFields `json:"fields"`
}

// IssueFields はイシューのフィールドです
type IssueFields struct {
	Summary     *string               `json:"summary"`
	Description Optional[string]      `json:"description"`
	Status      Optional[NamedObject] `json:"status"`
	Priority    Optional[NamedObject] `json:"priority"`
	IssueType   Optional[NamedObject] `json:"issuetype"`
	Reporter    Optional[User]        `json:"reporter"`
	Assignee    Optional[User]        `json:"assignee"`
	Created     Optional[string]      `json:"created"`
	Updated     Optional[string]      `json:"updated"`
	Labels      Optional[[]string]    `json:"labels"`
	Comment     Optional[CommentPage] `json:"comment"`
}

// NamedObject はステータスや優先度など name を持つオブジェクトです
type NamedObject struct {
	Name Optional[string] `json:"name"`
}

// User はJIRAのユーザーです
type User struct {
	DisplayName Optional[string] `json:"displayName"`
}

// CommentPage はイシューに付随するコメント一覧です
type CommentPage struct {
	Comments []Optional[RawComment] `json:"comments"`
}

// RawComment は1件のコメントです
type RawComment struct {
	Author Optional[User]   `json:"author"`
	Body   Optional[string] `json:"body"`
}

// Record は出力ファイルに1行として書き込まれる正規化済みレコードです
type Record struct {
	ID           string        `json:"id"`
	Project      string        `json:"project"`
	Summary      string        `json:"summary"`
	Description  string        `json:"description"`
	CommentsText string        `json:"comments_text"`
	Metadata     Metadata      `json:"metadata"`
	DerivedTasks []DerivedTask `json:"derived_tasks"`
}

// Metadata はレコードのメタ情報です
type Metadata struct {
	Status    string   `json:"status"`
	Priority  string   `json:"priority"`
	IssueType string   `json:"issue_type"`
	Reporter  string   `json:"reporter"`
	Assignee  string   `json:"assignee"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Labels    []string `json:"labels"`
	IssueURL  string   `json:"issue_url"`
}

// DerivedTask はLLM学習用に派生させたタスクです
type DerivedTask struct {
	TaskType    string `json:"task_type"`
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}
