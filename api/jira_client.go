package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"jirascraper/config"
	"jirascraper/models"
	"jirascraper/utils"
)

// FetchError は再試行を使い切った、または再試行対象外の失敗を表します
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Retryable  bool
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("取得失敗 (%s, 試行回数=%d", e.URL, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", ステータス=%d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFatal は err が実行を停止すべき取得エラーかを判定します
func IsFatal(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// maxBodyInError はエラーメッセージに含めるレスポンス本文の最大長です
const maxBodyInError = 512

// JiraClient はJIRA APIとのやり取りを処理します
type JiraClient struct {
	config *config.Config
	client *resty.Client
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewJiraClient は新しいJIRAクライアントを作成します
func NewJiraClient(cfg *config.Config) *JiraClient {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay
	}
	if cfg.RetryMultiplier > 0 {
		policy.Multiplier = cfg.RetryMultiplier
	}
	return NewJiraClientWithPolicy(cfg, policy)
}

// NewJiraClientWithPolicy は再試行方針を指定してJIRAクライアントを作成します
func NewJiraClientWithPolicy(cfg *config.Config, policy RetryPolicy) *JiraClient {
	// 再試行はRetryPolicyで行うため resty 側の再試行は無効のまま
	client := resty.New().
		SetBaseURL(cfg.JiraURL).
		SetHeader("Accept", "application/json")
	if cfg.RequestTimeout > 0 {
		client.SetTimeout(cfg.RequestTimeout)
	}
	if cfg.JiraEmail != "" && cfg.JiraAPIToken != "" {
		client.SetBasicAuth(cfg.JiraEmail, cfg.JiraAPIToken)
	}

	return &JiraClient{
		config: cfg,
		client: client,
		policy: policy,
		sleep:  sleepContext,
	}
}

// ProjectJQL はプロジェクトを作成日順に取得するJQLを返します
func ProjectJQL(projectKey string) string {
	return fmt.Sprintf("project = %s ORDER BY created ASC", projectKey)
}

// CheckAuth はJIRAへの接続と認証をチェックします
func (j *JiraClient) CheckAuth(ctx context.Context) error {
	// 認証情報がない場合は匿名でアクセス可能なエンドポイントを使う
	path := "/rest/api/2/serverInfo"
	if j.config.JiraEmail != "" && j.config.JiraAPIToken != "" {
		path = "/rest/api/2/myself"
	}

	_, _, err := j.get(ctx, path, nil)
	return err
}

// Search はプロジェクトのイシューを startAt から maxResults 件取得します
func (j *JiraClient) Search(ctx context.Context, projectKey string, startAt, maxResults int) (*models.SearchResponse, error) {
	params := map[string]string{
		"jql":        ProjectJQL(projectKey),
		"startAt":    strconv.Itoa(startAt),
		"maxResults": strconv.Itoa(maxResults),
		"fields":     j.config.Fields,
		"expand":     "comment",
	}

	body, attempts, err := j.get(ctx, j.config.SearchPath, params)
	if err != nil {
		return nil, err
	}

	var result models.SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &FetchError{URL: j.config.SearchURL(), StatusCode: http.StatusOK, Attempts: attempts, Err: fmt.Errorf("レスポンス解析エラー: %w", err)}
	}
	return &result, nil
}

// get は再試行方針に従ってGETリクエストを送信し、成功したレスポンス本文と試行回数を返します
func (j *JiraClient) get(ctx context.Context, path string, params map[string]string) ([]byte, int, error) {
	url := j.config.JiraURL + path

	for attempt := 1; ; attempt++ {
		resp, err := j.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempt, fmt.Errorf("リクエスト中断: %w", ctxErr)
		}

		var wait time.Duration
		switch {
		case err != nil:
			// 接続失敗・タイムアウト
			utils.LogWarn("リクエスト送信エラー (試行 %d/%d): %v", attempt, j.policy.MaxRetries+1, err)
			if attempt > j.policy.MaxRetries {
				return nil, attempt, &FetchError{URL: url, Attempts: attempt, Retryable: true, Err: fmt.Errorf("リクエスト送信エラー: %w", err)}
			}
			wait = j.policy.Delay(attempt)

		case resp.StatusCode() == http.StatusOK:
			return resp.Body(), attempt, nil

		case j.policy.ShouldRetryStatus(resp.StatusCode()):
			utils.LogWarn("一時的なエラー応答 %d (試行 %d/%d)", resp.StatusCode(), attempt, j.policy.MaxRetries+1)
			if attempt > j.policy.MaxRetries {
				return nil, attempt, &FetchError{URL: url, StatusCode: resp.StatusCode(), Attempts: attempt, Retryable: true, Body: truncate(resp.String())}
			}
			wait = j.policy.Delay(attempt)
			if after, ok := j.policy.retryAfter(resp.Header()); ok {
				wait = after
			}

		default:
			// 200以外で再試行対象外の応答 (429以外の4xx、1xx/3xx、200以外の2xx) は再試行しない
			return nil, attempt, &FetchError{URL: url, StatusCode: resp.StatusCode(), Attempts: attempt, Body: truncate(resp.String())}
		}

		utils.LogDebug("%s 後に再試行します", wait)
		if err := j.sleep(ctx, wait); err != nil {
			return nil, attempt, fmt.Errorf("リクエスト中断: %w", err)
		}
	}
}

func truncate(s string) string {
	if len(s) > maxBodyInError {
		return s[:maxBodyInError] + "..."
	}
	return s
}
