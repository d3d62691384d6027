package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/medsupport/guideline-rag/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 設定読み込みまでのログは標準エラー出力へ
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	app := &cli.Command{
		Name:  "guideline-rag",
		Usage: "臨床ガイドラインの取り込みと RAG 質問応答",
		Commands: []*cli.Command{
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "スキーマを作成（LOAD_MINZDRAV_DATA=true なら同期も実行）",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.DBInitAction,
					},
				},
			},
			{
				Name:  "registry",
				Usage: "臨床ガイドライン登録簿コマンド",
				Commands: []*cli.Command{
					{
						Name:  "sync",
						Usage: "登録簿と同期し、新しい文書を取り込む",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "limit",
								Usage: "処理する文書数の上限（0 は無制限、既定値は LOAD_MINZDRAV_LIMIT）",
							},
							&cli.BoolFlag{
								Name:  "force",
								Usage: "保存済みの文書も再取得する（既定値は LOAD_MINZDRAV_FORCE）",
							},
							&cli.BoolFlag{
								Name:  "push-embeddings",
								Usage: "チャンクを embedding-service に送信する（既定値は LOAD_MINZDRAV_PUSH_EMBEDDINGS）",
							},
						},
						Action: appcli.RegistrySyncAction,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "質問に回答する",
				ArgsUsage: "<質問文>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.BoolFlag{
						Name:  "show-trace",
						Usage: "各段階の所要時間と結果を表示",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:   "chat",
				Usage:  "対話モードで質問する",
				Flags:  []cli.Flag{envFlag()},
				Action: appcli.ChatAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
