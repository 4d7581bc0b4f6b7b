package services

import (
	"context"
	"fmt"
	"time"

	"jirascraper/config"
	"jirascraper/models"
	"jirascraper/utils"
)

// RunSummary は1回の実行結果の集計です
type RunSummary struct {
	Pages            int
	RecordsWritten   int
	Skipped          int
	SourcesCompleted int
	Final            models.Cursor
	Done             bool
}

// ScraperService は設定されたプロジェクトを順番にスクレイピングします
type ScraperService struct {
	projects    []string
	paginator   *Paginator
	transformer *Transformer
	writer      *BatchWriter
	store       CursorStore
}

// NewScraperService は新しいスクレイピングサービスを作成します
func NewScraperService(cfg *config.Config, searcher Searcher, sink Sink, store CursorStore) *ScraperService {
	return &ScraperService{
		projects:    cfg.Projects,
		paginator:   NewPaginator(searcher, cfg.PageSize),
		transformer: NewTransformer(cfg.BrowseURL),
		writer:      NewBatchWriter(sink, store),
		store:       store,
	}
}

// Run は保存された進捗から再開し、全プロジェクトを取得し終えるまで処理します。
// 致命的なエラーの場合、最後にコミットしたカーソルはそのまま残ります。
func (s *ScraperService) Run(ctx context.Context) (RunSummary, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "スクレイピング処理全体")

	var summary RunSummary

	cursor, err := s.store.Load()
	if err != nil {
		return summary, err
	}
	summary.Final = cursor

	for cursor.SourceIndex < len(s.projects) {
		next, err := s.scrapeProject(ctx, cursor, &summary)
		if err != nil {
			return summary, err
		}

		// 次のプロジェクトへ進み、すぐに保存する
		cursor = models.Cursor{SourceIndex: next.SourceIndex + 1, Offset: 0}
		if err := s.store.Save(cursor); err != nil {
			return summary, fmt.Errorf("状態保存エラー: %w", err)
		}
		summary.Final = cursor
		summary.SourcesCompleted++
	}

	summary.Done = true
	utils.LogInfo("全プロジェクトのスクレイピングが完了しました: ページ=%d, 書き込み=%d, スキップ=%d",
		summary.Pages, summary.RecordsWritten, summary.Skipped)
	return summary, nil
}

// scrapeProject は1つのプロジェクトを最後のページまで取得し、最後にコミットしたカーソルを返します
func (s *ScraperService) scrapeProject(ctx context.Context, cursor models.Cursor, summary *RunSummary) (models.Cursor, error) {
	project := s.projects[cursor.SourceIndex]
	utils.LogInfo("--- プロジェクト %s を開始します (開始位置: %d) ---", project, cursor.Offset)

	for page, err := range s.paginator.Pages(ctx, project, cursor.Offset) {
		if err != nil {
			return cursor, fmt.Errorf("プロジェクト %s の取得に失敗 (開始位置 %d): %w", project, cursor.Offset, err)
		}

		records, skipped := s.transformer.TransformPage(page)
		for _, skip := range skipped {
			utils.LogWarn("%v", skip)
		}

		next := models.Cursor{SourceIndex: cursor.SourceIndex, Offset: page.NextOffset}
		if err := s.writer.Commit(records, next); err != nil {
			return cursor, err
		}
		cursor = next

		summary.Pages++
		summary.RecordsWritten += len(records)
		summary.Skipped += len(skipped)
		summary.Final = cursor

		utils.LogInfo("%s: %d/%d 件 (書き込み=%d, スキップ=%d)",
			project, page.NextOffset, page.Total, len(records), len(skipped))
	}

	utils.LogInfo("プロジェクト %s の取得が完了しました", project)
	return cursor, nil
}
