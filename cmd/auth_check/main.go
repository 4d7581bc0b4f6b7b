package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"jirascraper/api"
	"jirascraper/config"
	"jirascraper/utils"
)

func main() {
	// コマンドラインフラグの定義
	timeout := flag.Duration("timeout", 30*time.Second, "確認全体のタイムアウト")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	utils.LogInfo("JIRA接続確認ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// JIRAクライアントの初期化
	jiraClient := api.NewJiraClient(cfg)

	// 接続チェック
	utils.LogInfo("JIRA APIへの接続を確認しています...")
	if err := jiraClient.CheckAuth(ctx); err != nil {
		utils.LogError("JIRA接続エラー: %v", err)
		utils.LogError("JIRA_URL と認証情報を確認してください。")
		utils.SyncLogger()
		os.Exit(1)
	}

	utils.LogInfo("JIRA接続成功！ 接続先: %s", cfg.JiraURL)
	if cfg.JiraEmail == "" {
		utils.LogInfo("認証情報なし（匿名アクセス）で接続しています。")
	}
	utils.SyncLogger()
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
JIRA接続確認ツール

使用方法:
  %s [オプション]

オプション:
  -timeout 時間        確認全体のタイムアウト (デフォルト: 30s)
  -help               このヘルプを表示する

環境変数:
  JIRA_URL            JIRA URL (デフォルト: https://issues.apache.org/jira)
  JIRA_EMAIL          JIRA APIアカウントのメールアドレス (任意)
  JIRA_API_TOKEN      JIRA APIトークン (任意)
  MAX_RETRIES         再試行の最大回数 (デフォルト: 5)

説明:
  このツールはJIRA APIに接続できるかを確認します。
  認証情報が設定されていれば /rest/api/2/myself、
  なければ /rest/api/2/serverInfo にアクセスします。
`, os.Args[0])
}
