package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/config"
	"github.com/zhouzirui/roboadvisor/client/internal/identity"
	"github.com/zhouzirui/roboadvisor/client/internal/logging"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	chatService "github.com/zhouzirui/roboadvisor/client/internal/service/chat"
)

// app 保存一次命令执行所需的依赖
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    identity.Store
	client   *backend.Client
	provider *identity.Provider
	closers  []func() error
}

type rootFlags struct {
	backendURL string
	dbPath     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	var a *app

	root := &cobra.Command{
		Use:   "chatcli",
		Short: "Talk to the robo-advisor chat backend from a terminal",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(flags)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.backendURL, "backend", "", "backend base URL (default BACKEND_BASE_URL)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "identity database path (default IDENTITY_DB_PATH)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log requests to stderr")

	appRef := func() *app { return a }
	root.AddCommand(
		newInitCmd(appRef),
		newWhoamiCmd(appRef),
		newResetCmd(appRef),
		newSessionsCmd(appRef),
		newNewCmd(appRef),
		newHistoryCmd(appRef),
		newAskCmd(appRef),
		newSuggestCmd(),
	)
	return root
}

func newApp(flags *rootFlags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if flags.backendURL != "" {
		cfg.Backend.BaseURL = flags.backendURL
	}
	if flags.dbPath != "" {
		cfg.Identity.DBPath = flags.dbPath
	}

	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return nil, err
	}

	store, err := identity.NewSQLiteStore(cfg.Identity.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, backend.WithLogger(logger))
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		provider: identity.NewProvider(store, client),
		closers:  []func() error{store.Close},
	}, nil
}

func (a *app) close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func newInitCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an anonymous user if none is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, created, err := get().provider.Ensure(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s\n", userID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "using stored user %s\n", userID)
			return nil
		},
	}
}

func newWhoamiCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the stored user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := get().provider.Current(cmd.Context())
			if err != nil {
				return err
			}
			if userID == "" {
				return errors.New("no user yet, run `chatcli init`")
			}
			fmt.Fprintln(cmd.OutOrStdout(), userID)
			return nil
		},
	}
}

func newResetCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return get().provider.Reset(cmd.Context())
		},
	}
}

func newSessionsCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			userID, err := a.provider.Current(cmd.Context())
			if err != nil {
				return err
			}
			dir := chatService.NewDirectory(a.client, a.cfg.Chat.DirectoryConcurrency, a.logger)
			sessions, err := dir.Load(cmd.Context(), userID)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
}

func newNewCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			userID, err := a.provider.Current(cmd.Context())
			if err != nil {
				return err
			}
			id, err := chatService.NewDirectory(a.client, 1, a.logger).StartNew(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newHistoryCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history SESSION_ID",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			userID, err := a.provider.Current(cmd.Context())
			if err != nil {
				return err
			}
			messages, err := chatService.NewMessageLoader(a.client).Load(cmd.Context(), userID, chat.ID(args[0]))
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), messages)
			return nil
		},
	}
}

func newAskCmd(get func() *app) *cobra.Command {
	var sessionFlag string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Send a question and wait for the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			userID, err := a.provider.Current(ctx)
			if err != nil {
				return err
			}
			sessionID, err := resolveSession(ctx, a, userID, sessionFlag)
			if err != nil {
				return err
			}

			view := chatService.NewController(a.client, chatService.ControllerOptions{
				Poll: chatService.PollPolicy{
					MaxAttempts: a.cfg.Chat.PollMaxAttempts,
					Interval:    a.cfg.Chat.PollInterval,
				},
				Logger: a.logger,
			})
			if err := view.Open(ctx, userID, sessionID); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[%s] %s\n", sessionID, chat.PlaceholderContent)
			outcome, err := view.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			snap := view.Snapshot()
			switch outcome {
			case chatService.OutcomeAnswered:
				printAnswer(out, snap.Messages)
			case chatService.OutcomeExhausted:
				fmt.Fprintln(out, "아직 답변이 도착하지 않았습니다. 잠시 후 `chatcli history` 로 확인하세요.")
				printAnswer(out, snap.Messages)
			default:
				fmt.Fprintf(out, "send ended: %s\n", outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", `session id, "latest", or empty to start a new one`)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 = poll budget only)")
	return cmd
}

func newSuggestCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Print starter questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range chatService.Suggestions(n) {
				fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", s.Question)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 3, "number of suggestions")
	return cmd
}

func printSessions(w io.Writer, sessions []chat.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "(no sessions)")
		return
	}
	for _, s := range sessions {
		started := "-"
		if !s.StartTime.IsZero() {
			started = s.StartTime.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-6s %-16s %s\n", s.ID, started, chatService.DisplayTitle(s))
	}
}

func printMessages(w io.Writer, messages []chat.Message) {
	for _, m := range messages {
		fmt.Fprintf(w, "%-4s %s\n", m.Sender, m.Content)
	}
}

func printAnswer(w io.Writer, messages []chat.Message) {
	if n := len(messages); n > 0 && messages[n-1].IsAnswer() {
		fmt.Fprintln(w, messages[n-1].Content)
	}
}
