package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// DBInitAction はスキーマを作成し、LOAD_MINZDRAV_DATA=true なら続けて同期を実行する
func DBInitAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	logger := appCtx.Logger()
	logger.Info("スキーマを作成します",
		"vectorTable", appCtx.Config.Retrieval.VectorTable,
		"dimensions", appCtx.Config.Embedding.Dimensions,
	)
	if err := appCtx.Container.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("スキーマ作成に失敗: %w", err)
	}
	logger.Info("スキーマを作成しました")

	if !appCtx.Config.Sync.LoadOnInit {
		return nil
	}
	return runSync(ctx, appCtx, syncParamsFromConfig(appCtx.Config.Sync), os.Stdout)
}
