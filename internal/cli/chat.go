package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fmueller/meetscribe/internal/llm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newChatCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <prompt...>",
		Short: "Send a single prompt to the chat model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatFn := app.chatFn
			if chatFn == nil {
				chatFn = app.chat
			}

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return fmt.Errorf("prompt is empty")
			}

			answer, err := chatFn(cmd.Context(), prompt, app.cfg.ChatModel)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&app.chatModel, "model", app.chatModel, "Chat completion model")
	return cmd
}

func (a *appState) chat(ctx context.Context, prompt, model string) (string, error) {
	api, err := a.apiClient()
	if err != nil {
		return "", err
	}
	client := llm.NewClient(api, model, a.log())

	stopSpinner := startSpinner(a.progressEnabled(), "Thinking")
	started := time.Now()
	answer, err := client.Complete(ctx, prompt, "")
	stopSpinner()
	if err != nil {
		return "", err
	}

	a.log().Debug("chat finished", zap.String("model", client.Model()), zap.Duration("elapsed", time.Since(started)))
	return answer, nil
}
