package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	coreask "github.com/medsupport/guideline-rag/internal/core/ask"
)

// Asker は質問応答を行う
type Asker interface {
	Ask(ctx context.Context, query string) (*coreask.AskResult, error)
}

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	showTrace := cmd.Bool("show-trace")
	envFile := cmd.String("env")

	// 質問文の取得
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return executeAsk(ctx, appCtx.Container.AskService, question, showTrace, os.Stdout)
}

// executeAsk は質問応答処理を実行し、回答を出力する
func executeAsk(ctx context.Context, asker Asker, question string, showTrace bool, out io.Writer) error {
	result, err := asker.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("質問応答に失敗: %w", err)
	}

	fmt.Fprintln(out, result.Answer)

	if showTrace {
		fmt.Fprintln(out, "\n--- trace ---")
		fmt.Fprintln(out, result.Describe())
		for _, st := range result.Trace {
			status := "ok"
			if st.Err != nil {
				status = st.Err.Error()
			}
			fmt.Fprintf(out, "%-8s %10s  %s\n", st.Stage, st.Duration.Round(time.Millisecond), status)
		}
	}
	return nil
}
