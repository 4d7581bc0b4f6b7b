package services

import (
	"context"
	"iter"

	"jirascraper/models"
)

// Searcher はプロジェクトのイシューを1ページ分取得します
type Searcher interface {
	Search(ctx context.Context, projectKey string, startAt, maxResults int) (*models.SearchResponse, error)
}

// Paginator は1つのプロジェクトに対してページ取得を繰り返します
type Paginator struct {
	searcher Searcher
	pageSize int
}

// NewPaginator は新しいページネーターを作成します
func NewPaginator(searcher Searcher, pageSize int) *Paginator {
	return &Paginator{
		searcher: searcher,
		pageSize: pageSize,
	}
}

// Pages は startAt から始まるページを順に返します。
// エラーが返された時点でシーケンスは終了します。
func (p *Paginator) Pages(ctx context.Context, projectKey string, startAt int) iter.Seq2[*models.Page, error] {
	return func(yield func(*models.Page, error) bool) {
		offset := startAt
		for {
			// キャンセルはページの境界でのみ確認する
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			resp, err := p.searcher.Search(ctx, projectKey, offset, p.pageSize)
			if err != nil {
				yield(nil, err)
				return
			}

			returned := len(resp.Issues)
			if returned == 0 {
				return
			}

			// 要求件数ではなく実際に返された件数だけ進める
			next := offset + returned
			page := &models.Page{
				Project:    projectKey,
				StartAt:    offset,
				Total:      resp.Total,
				Issues:     resp.Issues,
				NextOffset: next,
				Last:       returned < p.pageSize || next >= resp.Total,
			}

			if !yield(page, nil) || page.Last {
				return
			}
			offset = next
		}
	}
}
