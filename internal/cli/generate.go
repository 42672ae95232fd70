package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/tagstream/internal/agent"
	"github.com/soyeahso/tagstream/internal/domain"
)

func newGenerateCmd() *cobra.Command {
	var (
		system   string
		threadID string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Run one turn and print each action as it is decoded",
		Long: "Run one turn against the configured provider. Each action is printed on its own " +
			"line as soon as it is decoded. With no arguments the prompt is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading prompt: %w", err)
				}
				prompt = strings.TrimSpace(string(data))
			}
			if prompt == "" {
				return errors.New("empty prompt")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			sink := &consoleSink{w: cmd.OutOrStdout(), json: asJSON}
			res, err := a.runner.Generate(ctx, agent.TurnRequest{
				Prompt:   prompt,
				System:   system,
				ThreadID: threadID,
			}, sink)
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s model=%s attempts=%d actions=%d %s]\n",
				res.StateName, res.Model, res.Attempts, res.Actions, res.Duration.Round(1e6))
			return err
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "override the configured system prompt")
	cmd.Flags().StringVar(&threadID, "thread", "", "track the turn under this thread id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print actions as JSON lines")

	return cmd
}

// consoleSink prints one line per action.
type consoleSink struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

var _ agent.ActionSink = (*consoleSink)(nil)

func (s *consoleSink) OnReaction(_ context.Context, spec string) {
	s.action(agent.ParseReactionSpec(spec), spec)
}

func (s *consoleSink) OnSticker(_ context.Context, keyword string) {
	s.action(domain.Sticker{Keyword: keyword}, keyword)
}

func (s *consoleSink) OnMessage(_ context.Context, text string, quoteIndex *int) {
	line := text
	if quoteIndex != nil {
		line = fmt.Sprintf("(re #%d) %s", *quoteIndex, text)
	}
	s.action(domain.MessageSend{Text: text, QuoteIndex: quoteIndex}, line)
}

func (s *consoleSink) OnUndo(_ context.Context, target domain.UndoTarget) {
	s.action(domain.Undo{Target: target}, target.Spec())
}

func (s *consoleSink) OnCard(_ context.Context, userID string) {
	s.action(domain.Card{UserID: userID}, userID)
}

func (s *consoleSink) OnImage(_ context.Context, url, caption string) {
	s.action(domain.Image{URL: url, Caption: caption}, strings.TrimSpace(url+" "+caption))
}

func (s *consoleSink) OnComplete(context.Context) {}

func (s *consoleSink) OnError(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.json {
		json.NewEncoder(s.w).Encode(map[string]string{"kind": "error", "error": err.Error()})
		return
	}
	fmt.Fprintf(s.w, "%-9s %v\n", "error", err)
}

func (s *consoleSink) action(a domain.Action, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.json {
		json.NewEncoder(s.w).Encode(struct {
			Kind   domain.ActionKind `json:"kind"`
			Action domain.Action     `json:"action"`
		}{a.Kind(), a})
		return
	}
	fmt.Fprintf(s.w, "%-9s %s\n", a.Kind(), text)
}
