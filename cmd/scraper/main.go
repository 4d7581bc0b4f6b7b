package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"jirascraper/api"
	"jirascraper/config"
	"jirascraper/models"
	"jirascraper/services"
	"jirascraper/utils"
)

// 終了コード
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// flags はコマンドラインで上書きできる設定です
type flags struct {
	projects string
	pageSize int
	output   string
	state    string
	logLevel string
}

// app はコマンド間で共有する状態です
type app struct {
	flags flags
	cfg   *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(&app{}).ExecuteContext(ctx)
	stop()

	reportError(err)
	utils.SyncLogger()
	os.Exit(exitCode(err))
}

// exitCode はエラーをプロセスの終了コードに変換します
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}

// reportError は終了理由をログに出力します
func reportError(err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		utils.LogWarn("中断されました。次回は最後に保存した位置から再開します")
	case api.IsFatal(err):
		utils.LogError("JIRA からの取得に失敗したため停止しました。状態ファイルは最後に成功したページの位置です: %v", err)
	default:
		utils.LogError("処理に失敗しました: %v", err)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "scraper",
		Short:         "JIRA のイシューを取得して JSONL に追記するスクレイパー",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, a.flags)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), a.cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.projects, "projects", "", "スクレイピングするプロジェクト (カンマ区切り、JIRA_PROJECTS を上書き)")
	pf.IntVar(&a.flags.pageSize, "page-size", 0, "1リクエストあたりの件数 (PAGE_SIZE を上書き)")
	pf.StringVar(&a.flags.output, "output", "", "出力 JSONL ファイル (OUTPUT_FILE を上書き)")
	pf.StringVar(&a.flags.state, "state", "", "状態ファイル (STATE_FILE を上書き)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "ログレベル debug|info|warn|error (LOG_LEVEL を上書き)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "保存された位置からスクレイピングを実行する",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runScrape(cmd.Context(), a.cfg)
			},
		},
		&cobra.Command{
			Use:   "state",
			Short: "各プロジェクトの進捗を表示する",
			RunE: func(cmd *cobra.Command, args []string) error {
				cursor, err := services.NewStateStore(a.cfg.StateFile).Load()
				if err != nil {
					return err
				}
				services.RenderState(cmd.OutOrStdout(), a.cfg.Projects, cursor)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "進捗を先頭に戻す (出力ファイルは変更しない)",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := services.NewStateStore(a.cfg.StateFile).Save(models.Cursor{}); err != nil {
					return err
				}
				utils.LogInfo("状態ファイル %s をリセットしました", a.cfg.StateFile)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "出力ファイルのレコード数をプロジェクトごとに表示する",
			RunE: func(cmd *cobra.Command, args []string) error {
				result, err := services.ReadRecords(a.cfg.OutputFile)
				if err != nil {
					return err
				}
				services.RenderStats(cmd.OutOrStdout(), result)
				return nil
			},
		},
	)

	return root
}

// loadConfig は環境変数から設定を読み込み、明示的に指定されたフラグで上書きします。
// 上書き後の値も Validate で検証するため、不正なフラグ値は無視されずにエラーになります
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	if cmd.Flags().Changed("projects") {
		cfg.Projects = config.ParseList(f.projects)
	}
	if cmd.Flags().Changed("page-size") {
		cfg.PageSize = f.pageSize
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputFile = f.output
	}
	if cmd.Flags().Changed("state") {
		cfg.StateFile = f.state
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	utils.SetLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

func runScrape(ctx context.Context, cfg *config.Config) error {
	utils.LogInfo("JIRA スクレイパー: 接続先=%s, プロジェクト=%v, ページサイズ=%d", cfg.JiraURL, cfg.Projects, cfg.PageSize)

	store := services.NewStateStore(cfg.StateFile)
	sink := services.NewOutputSink(cfg.OutputFile)
	svc := services.NewScraperService(cfg, api.NewJiraClient(cfg), sink, store)

	summary, err := svc.Run(ctx)
	utils.LogInfo("ページ=%d, 書き込み=%d, スキップ=%d, 完了プロジェクト=%d, 現在位置=%+v",
		summary.Pages, summary.RecordsWritten, summary.Skipped, summary.SourcesCompleted, summary.Final)
	return err
}
