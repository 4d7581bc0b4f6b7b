package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"jirascraper/models"
)

const (
	unknownIssueKey = "<unknown>"
	unknownValue    = "Unknown"
	notAssigned     = "Not Assigned"

	// commentSeparator はコメント同士を連結する区切りです
	commentSeparator = "\n"
)

// 派生タスクの種類
const (
	TaskSummarization     = "summarization"
	TaskClassification    = "classification"
	TaskQuestionAnswering = "question_answering"
)

// SkipError は不正なイシューをスキップしたことを表します
type SkipError struct {
	IssueKey string
	Reason   string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("イシュー %s をスキップ: %s", e.IssueKey, e.Reason)
}

// Transformer はJIRAのイシューを出力レコードに変換します
type Transformer struct {
	browseURL func(issueKey string) string
}

// NewTransformer は新しい変換器を作成します
func NewTransformer(browseURL func(issueKey string) string) *Transformer {
	return &Transformer{browseURL: browseURL}
}

// TransformPage はページ内の全イシューを変換し、スキップしたイシューを別に返します
func (t *Transformer) TransformPage(page *models.Page) ([]models.Record, []*SkipError) {
	records := make([]models.Record, 0, len(page.Issues))
	var skipped []*SkipError

	for _, raw := range page.Issues {
		record, err := t.Transform(raw, page.Project)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		records = append(records, *record)
	}

	return records, skipped
}

// Transform は1件のイシューを変換します。必須フィールドが欠けている場合は SkipError を返します
func (t *Transformer) Transform(raw json.RawMessage, projectKey string) (*models.Record, *SkipError) {
	var issue models.RawIssue
	if err := json.Unmarshal(raw, &issue); err != nil {
		return nil, &SkipError{IssueKey: peekIssueKey(raw), Reason: fmt.Sprintf("JSON解析エラー: %v", err)}
	}

	if issue.Key == nil || *issue.Key == "" {
		return nil, &SkipError{IssueKey: unknownIssueKey, Reason: "key がありません"}
	}
	key := *issue.Key

	fields := issue.Fields
	if fields == nil {
		return nil, &SkipError{IssueKey: key, Reason: "fields がありません"}
	}
	if fields.Summary == nil {
		return nil, &SkipError{IssueKey: key, Reason: "summary がありません"}
	}

	summary := *fields.Summary
	description := fields.Description.Or("")
	commentsText := joinComments(fields.Comment)
	status := nameOr(fields.Status, unknownValue)
	priority := nameOr(fields.Priority, unknownValue)

	labels := fields.Labels.Or(nil)
	if labels == nil {
		labels = []string{}
	}

	record := &models.Record{
		ID:           key,
		Project:      projectKey,
		Summary:      summary,
		Description:  description,
		CommentsText: commentsText,
		Metadata: models.Metadata{
			Status:    status,
			Priority:  priority,
			IssueType: nameOr(fields.IssueType, unknownValue),
			Reporter:  displayNameOr(fields.Reporter, unknownValue),
			Assignee:  displayNameOr(fields.Assignee, notAssigned),
			CreatedAt: fields.Created.Or(""),
			UpdatedAt: fields.Updated.Or(""),
			Labels:    labels,
			IssueURL:  t.browseURL(key),
		},
		DerivedTasks: deriveTasks(summary, description, commentsText, priority, status),
	}

	return record, nil
}

// deriveTasks は固定の順序で派生タスクを生成します
func deriveTasks(summary, description, commentsText, priority, status string) []models.DerivedTask {
	return []models.DerivedTask{
		{
			TaskType:    TaskSummarization,
			Instruction: "Summarize the following software issue, including its description and all comments, into a concise one-sentence title.",
			Input:       fmt.Sprintf("Description:\n%s\n\nComments:\n%s", description, commentsText),
			Output:      summary,
		},
		{
			TaskType:    TaskClassification,
			Instruction: "Based on the issue title and description, classify its priority. Valid options are: Blocker, Critical, Major, Minor, Trivial, Unknown.",
			Input:       fmt.Sprintf("Title: %s\nDescription: %s", summary, description),
			Output:      priority,
		},
		{
			TaskType:    TaskQuestionAnswering,
			Instruction: "What is the status of this issue?",
			Input:       fmt.Sprintf("Title: %s\nDescription: %s\nComments:\n%s", summary, description, commentsText),
			Output:      status,
		},
	}
}

// joinComments はコメントを元の順序のまま1つのテキストにまとめます
func joinComments(page models.Optional[models.CommentPage]) string {
	if !page.Valid {
		return ""
	}

	parts := make([]string, 0, len(page.Value.Comments))
	for _, item := range page.Value.Comments {
		if !item.Valid {
			continue
		}
		comment := item.Value
		body := strings.TrimSpace(comment.Body.Or(""))
		if body == "" {
			continue
		}
		author := displayNameOr(comment.Author, unknownValue)
		parts = append(parts, fmt.Sprintf("Comment by %s:\n%s\n---", author, body))
	}

	return strings.Join(parts, commentSeparator)
}

// peekIssueKey は解析に失敗したイシューからキーだけを取り出します
func peekIssueKey(raw json.RawMessage) string {
	var head struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.Key == "" {
		return unknownIssueKey
	}
	return head.Key
}

func nameOr(obj models.Optional[models.NamedObject], fallback string) string {
	if name := obj.Value.Name.Or(""); obj.Valid && name != "" {
		return name
	}
	return fallback
}

func displayNameOr(user models.Optional[models.User], fallback string) string {
	if name := user.Value.DisplayName.Or(""); user.Valid && name != "" {
		return name
	}
	return fallback
}
