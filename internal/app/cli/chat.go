package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/medsupport/guideline-rag/internal/core/session"
)

const (
	chatCommandHistory = "/history"
	chatCommandExit    = "/exit"
	chatCommandQuit    = "/quit"
)

// ChatAction は対話モードのアクション。1行1質問で回答し、終了時にセッションを破棄する。
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return runChat(ctx, appCtx.Container.AskService, appCtx.Container.Sessions, os.Stdin, os.Stdout)
}

func runChat(ctx context.Context, asker Asker, sessions *session.Manager, in io.Reader, out io.Writer) error {
	id := sessions.Create()
	defer sessions.Remove(id)

	fmt.Fprintf(out, "Сессия %s. Команды: %s, %s\n", id, chatCommandHistory, chatCommandExit)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case chatCommandExit, chatCommandQuit:
			return nil
		case chatCommandHistory:
			for _, m := range sessions.History(id) {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp, m.Role, m.Content)
			}
			continue
		}

		if err := sessions.Append(id, session.RoleUser, line); err != nil {
			return err
		}

		result, err := asker.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("質問応答に失敗: %w", err)
		}
		fmt.Fprintln(out, result.Answer)

		if err := sessions.Append(id, session.RoleBot, result.Answer); err != nil {
			return err
		}
	}
	return scanner.Err()
}
