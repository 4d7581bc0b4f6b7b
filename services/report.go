package services

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"jirascraper/models"
)

// プロジェクトの進捗状態
const (
	ProjectDone       = "完了"
	ProjectInProgress = "進行中"
	ProjectPending    = "未着手"
)

// ProjectStatus はカーソルから見たプロジェクトの状態を返します
func ProjectStatus(index int, cursor models.Cursor) string {
	switch {
	case index < cursor.SourceIndex:
		return ProjectDone
	case index == cursor.SourceIndex && cursor.Offset > 0:
		return ProjectInProgress
	default:
		return ProjectPending
	}
}

// RenderState は各プロジェクトの進捗を表形式で出力します
func RenderState(w io.Writer, projects []string, cursor models.Cursor) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Project", "Status", "Offset"})

	for i, project := range projects {
		offset := ""
		if i == cursor.SourceIndex {
			offset = fmt.Sprint(cursor.Offset)
		}
		t.AppendRow(table.Row{i, project, ProjectStatus(i, cursor), offset})
	}
	t.Render()
}

// RenderStats はプロジェクトごとのレコード数を表形式で出力します
func RenderStats(w io.Writer, result *ReadResult) {
	counts := make(map[string]int)
	for _, record := range result.Records {
		counts[record.Project]++
	}

	projects := make([]string, 0, len(counts))
	for project := range counts {
		projects = append(projects, project)
	}
	sort.Strings(projects)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Project", "Records"})
	for _, project := range projects {
		t.AppendRow(table.Row{project, counts[project]})
	}
	t.AppendFooter(table.Row{"Total", len(result.Records)})
	t.Render()

	if result.PartialLine {
		fmt.Fprintln(w, "警告: 末尾に不完全な行があります")
	}
}
