package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// JIRA API設定
	JiraURL      string
	SearchPath   string
	JiraEmail    string
	JiraAPIToken string
	Projects     []string
	Fields       string

	// ページング・リトライ設定
	PageSize        int
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryMultiplier float64
	RequestTimeout  time.Duration

	// ファイルパス
	OutputFile string
	StateFile  string

	LogLevel string
}

// DefaultProjects はスクレイピング対象のデフォルトプロジェクトです
var DefaultProjects = []string{"SPARK", "KAFKA", "BEAM"}

// DefaultFields は検索APIに要求するフィールドの許可リストです
const DefaultFields = "summary,description,status,priority,reporter,assignee,created,updated,labels,issuetype,comment"

// LoadConfig は環境変数から設定を読み込みます
func LoadConfig() (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	multiplier, err := getEnvAsFloatWithDefault("RETRY_MULTIPLIER", 2)
	if err != nil {
		return nil, err
	}

	config := &Config{
		JiraURL:         strings.TrimRight(getEnvWithDefault("JIRA_URL", "https://issues.apache.org/jira"), "/"),
		SearchPath:      getEnvWithDefault("JIRA_SEARCH_PATH", "/rest/api/latest/search"),
		JiraEmail:       os.Getenv("JIRA_EMAIL"),
		JiraAPIToken:    os.Getenv("JIRA_API_TOKEN"),
		Projects:        getEnvAsListWithDefault("JIRA_PROJECTS", DefaultProjects),
		Fields:          getEnvWithDefault("JIRA_FIELDS", DefaultFields),
		PageSize:        getEnvAsIntWithDefault("PAGE_SIZE", 100),
		MaxRetries:      getEnvAsIntWithDefault("MAX_RETRIES", 5),
		RetryBaseDelay:  getEnvAsDurationWithDefault("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:   getEnvAsDurationWithDefault("RETRY_MAX_DELAY", 60*time.Second),
		RetryMultiplier: multiplier,
		RequestTimeout:  getEnvAsDurationWithDefault("REQUEST_TIMEOUT", 30*time.Second),
		OutputFile:      getEnvWithDefault("OUTPUT_FILE", "output.jsonl"),
		StateFile:       getEnvWithDefault("STATE_FILE", "scraper_state.json"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
	}

	return config, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	switch {
	case c.JiraURL == "":
		return fmt.Errorf("JIRA_URL が設定されていません")
	case len(c.Projects) == 0:
		return fmt.Errorf("プロジェクトが1つも指定されていません")
	case c.PageSize < 1:
		return fmt.Errorf("PAGE_SIZE は1以上である必要があります: %d", c.PageSize)
	case c.MaxRetries < 0:
		return fmt.Errorf("MAX_RETRIES は0以上である必要があります: %d", c.MaxRetries)
	case c.RetryBaseDelay <= 0:
		return fmt.Errorf("RETRY_BASE_DELAY は正の値である必要があります: %s", c.RetryBaseDelay)
	case c.RetryMaxDelay < c.RetryBaseDelay:
		return fmt.Errorf("RETRY_MAX_DELAY (%s) は RETRY_BASE_DELAY (%s) 以上である必要があります", c.RetryMaxDelay, c.RetryBaseDelay)
	case c.RetryMultiplier < 1:
		return fmt.Errorf("RETRY_MULTIPLIER は1以上である必要があります: %g", c.RetryMultiplier)
	case c.OutputFile == "":
		return fmt.Errorf("OUTPUT_FILE が設定されていません")
	case c.StateFile == "":
		return fmt.Errorf("STATE_FILE が設定されていません")
	}
	return nil
}

// SearchURL は検索エンドポイントの完全なURLを返します
func (c *Config) SearchURL() string {
	return c.JiraURL + c.SearchPath
}

// BrowseURL はイシュー閲覧用のURLを返します
func (c *Config) BrowseURL(issueKey string) string {
	return fmt.Sprintf("%s/browse/%s", c.JiraURL, issueKey)
}

// ParseList はカンマ区切りの文字列を空要素を除いたリストに変換します
func ParseList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// デフォルト値付きで環境変数を整数として取得
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// デフォルト値付きで環境変数を時間として取得 ("1s" 形式または秒数)
func getEnvAsDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}

	return defaultValue
}

func getEnvAsFloatWithDefault(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	return value, nil
}

// デフォルト値付きで環境変数をリストとして取得
func getEnvAsListWithDefault(key string, defaultValue []string) []string {
	list := ParseList(os.Getenv(key))
	if len(list) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return list
}
