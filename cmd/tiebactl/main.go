package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/d60-Lab/tieba-pipeline/config"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/internal/service"
	"github.com/d60-Lab/tieba-pipeline/internal/tieba"
	"github.com/d60-Lab/tieba-pipeline/pkg/database"
	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

// app 持有初始化完成的依赖，供各子命令复用
type app struct {
	cfg *config.Config

	stateRepo  repository.ForumStateRepository
	threadRepo repository.ThreadRepository
	imageRepo  repository.ImageTaskRepository
	relayRepo  repository.RelayTaskRepository

	pool   *tieba.AccountPool
	client tieba.Client
	tz     *time.Location
}

func newApp() (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, err
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}

	var accounts []tieba.Account
	for _, acc := range cfg.Accounts {
		accounts = append(accounts, tieba.Account{BDUSS: acc.BDUSS, SToken: acc.SToken, Label: acc.Label})
	}
	if len(accounts) == 0 && cfg.BDUSS != "" {
		accounts = append(accounts, tieba.Account{BDUSS: cfg.BDUSS, SToken: cfg.SToken, Label: "default"})
	}
	pool := tieba.NewAccountPool(accounts)

	return &app{
		cfg:        cfg,
		stateRepo:  repository.NewForumStateRepository(db),
		threadRepo: repository.NewThreadRepository(db),
		imageRepo:  repository.NewImageTaskRepository(db),
		relayRepo:  repository.NewRelayTaskRepository(db),
		pool:       pool,
		client:     tieba.NewRetryingClient(tieba.NewHTTPClient(pool), cfg.Crawler.RequestAttempts),
		tz:         tz,
	}, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func main() {
	root := &cobra.Command{
		Use:           "tiebactl",
		Short:         "贴吧内容管线命令行工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitDBCmd(),
		newCrawlCmd(),
		newDownloadCmd(),
		newSyncCollectionsCmd(),
		newSetCategoryCmd(),
		newRelayCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "建库建表（已存在时为 no-op）",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel); err != nil {
				return err
			}
			_, err = database.InitDB(cfg)
			if err == nil {
				fmt.Println("ok")
			}
			return err
		},
	}
}

func newCrawlCmd() *cobra.Command {
	var forum string
	var pages int

	cmd := &cobra.Command{
		Use:   "crawl-threads",
		Short: "增量抓取一轮帖子列表",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if forum == "" {
				forum = a.cfg.DefaultForum
			}
			if forum == "" {
				return fmt.Errorf("forum is required (--forum or default_forum)")
			}
			if pages <= 0 {
				pages = a.cfg.Crawler.MaxPages
			}

			crawler := service.NewCrawler(a.client, a.stateRepo, a.threadRepo, a.imageRepo, a.cfg.Rules,
				time.Duration(a.cfg.Crawler.PageSleepMsMin)*time.Millisecond,
				time.Duration(a.cfg.Crawler.PageSleepMsMax)*time.Millisecond)

			res, err := crawler.Run(cmd.Context(), service.CrawlParams{
				Forum:          forum,
				PageSize:       a.cfg.Crawler.PageSize,
				InitialHours:   a.cfg.Crawler.InitialHours,
				OverlapSeconds: a.cfg.Crawler.OverlapSeconds,
				MaxPages:       pages,
			})
			if err != nil {
				return err
			}
			printJSON(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&forum, "forum", "", "吧名")
	cmd.Flags().IntVar(&pages, "max-pages", 0, "本轮最多翻页数")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var limit int
	var includeError bool

	cmd := &cobra.Command{
		Use:   "download-images",
		Short: "认领并下载待处理图片任务",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			d := service.NewDownloader(a.imageRepo, a.threadRepo, a.cfg.DataDir,
				a.cfg.Images.Concurrency, a.cfg.Images.Attempts, a.cfg.Images.RatePerSec)
			res, err := d.Run(cmd.Context(), service.DownloadParams{
				Limit:        limit,
				IncludeError: includeError,
			})
			if err != nil {
				return err
			}
			printJSON(res)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "本轮最多认领任务数")
	cmd.Flags().BoolVar(&includeError, "include-error", false, "同时重试 ERROR 状态任务")
	return cmd
}

func newSyncCollectionsCmd() *cobra.Command {
	var forum string
	var days int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync-collections",
		Short: "回扫历史帖，按标题规则补标合集帖",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if forum == "" {
				forum = a.cfg.DefaultForum
			}
			if forum == "" {
				return fmt.Errorf("forum is required (--forum or default_forum)")
			}
			b := service.NewBackfill(a.threadRepo, a.cfg.Rules)
			res, err := b.Run(cmd.Context(), service.BackfillParams{
				Forum:  forum,
				Days:   days,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}
			printJSON(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&forum, "forum", "", "吧名")
	cmd.Flags().IntVar(&days, "days", 0, "回扫天数")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只打印将要修改的帖子")
	return cmd
}

func newSetCategoryCmd() *cobra.Command {
	var tid int64
	var category string
	var tags string

	cmd := &cobra.Command{
		Use:   "set-category",
		Short: "手工给单帖打分类/标签",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tid == 0 || category == "" {
				return fmt.Errorf("--tid and --category are required")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			var tagsJSON *string
			if tags != "" {
				tagsJSON = &tags
			}
			if err := a.threadRepo.SetCategory(cmd.Context(), tid, category, tagsJSON); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().Int64Var(&tid, "tid", 0, "帖子 ID")
	cmd.Flags().StringVar(&category, "category", "", "分类名")
	cmd.Flags().StringVar(&tags, "tags", "", "标签 JSON 数组，如 [\"a\",\"b\"]")
	return cmd
}

func newRelayCmd() *cobra.Command {
	var forum, category, mode string
	var maxPosts int
	var includeError, dryRun bool

	cmd := &cobra.Command{
		Use:   "relay-labeled",
		Short: "把已标注新帖转发到本周合集帖",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if forum == "" {
				forum = a.cfg.DefaultForum
			}
			if forum == "" {
				return fmt.Errorf("forum is required (--forum or default_forum)")
			}
			if mode == "" {
				mode = a.cfg.Relay.Mode
			}
			if maxPosts <= 0 {
				maxPosts = a.cfg.Relay.MaxPosts
			}

			r := service.NewRelay(a.threadRepo, a.relayRepo, a.imageRepo, a.client, a.pool, a.tz)
			res, err := r.Run(cmd.Context(), service.RelayParams{
				Forum:              forum,
				Category:           category,
				IncludeError:       includeError,
				DryRun:             dryRun,
				Mode:               mode,
				MaxPosts:           maxPosts,
				MinIntervalSeconds: a.cfg.Relay.MinIntervalSeconds,
				MaxTextChars:       a.cfg.Relay.MaxTextChars,
				MaxImages:          a.cfg.Relay.MaxImages,
				LookbackDays:       a.cfg.Relay.LookbackDays,
			})
			if err != nil {
				return err
			}
			printJSON(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&forum, "forum", "", "吧名")
	cmd.Flags().StringVar(&category, "category", "", "只转发该分类（默认全部）")
	cmd.Flags().StringVar(&mode, "mode", "", "link | full")
	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "本轮最多回帖数")
	cmd.Flags().BoolVar(&includeError, "include-error", false, "重试 ERROR 状态任务")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只打印将要发送的内容，不实际回帖")
	return cmd
}
