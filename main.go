package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"school-library/handlers"
	"school-library/library"
	"school-library/session"
)

type app struct {
	cfg    Config
	logger *slog.Logger
	user   string
}

func main() {
	a := &app{cfg: loadConfig()}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "School library borrowing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(a.cfg, os.Stderr)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "path to the SQLite database")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug, info, warn or error")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "text or json")
	pf.StringVarP(&a.user, "user", "u", "", "user id to act as")

	root.AddCommand(
		a.initCmd(),
		a.serveCmd(),
		a.booksCmd(),
		a.borrowCmd(),
		a.returnCmd(),
		a.loansCmd(),
		a.profileCmd(),
		a.classCmd(),
	)
	return root
}

func (a *app) open(opts ...library.Option) (*library.LibraryManager, error) {
	opts = append([]library.Option{library.WithLogger(a.logger)}, opts...)
	mgr, err := library.NewLibraryManager(a.cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return mgr, nil
}

var stdin = bufio.NewReader(os.Stdin)

// readPassword securely reads a password with masking when stdin is a
// terminal, and a plain line otherwise.
func readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	bytePassword, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // Add newline after password input
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytePassword)), nil
}

// authenticate prompts for the --user password and verifies it.
func (a *app) authenticate(ctx context.Context, mgr *library.LibraryManager) (*library.Person, error) {
	if a.user == "" {
		return nil, errors.New("--user is required")
	}
	password, err := readPassword(fmt.Sprintf("Password for %s: ", a.user))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return mgr.Authenticate(ctx, a.user, password)
}

func (a *app) initCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database schema, optionally with demo data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()
			if seed {
				if err := mgr.Seed(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s\n", a.cfg.DBPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert demo users, classes and books into an empty database")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var store session.Store = session.NewMemoryStore(a.cfg.SessionTTL)
			if a.cfg.RedisAddr != "" {
				client, err := session.NewRedisClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
				if err != nil {
					return err
				}
				defer client.Close()
				store = session.NewRedisStore(client, a.cfg.SessionTTL)
			}

			mgr, err := a.open(library.WithSessionStore(store))
			if err != nil {
				return err
			}
			defer mgr.Close()

			srv := &http.Server{
				Addr:              a.cfg.Addr,
				Handler:           handlers.NewRouter(handlers.NewAPIHandler(mgr, a.logger)),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("starting server", "addr", a.cfg.Addr, "redis", a.cfg.RedisAddr != "")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.cfg.Addr, "addr", a.cfg.Addr, "listen address")
	f.StringVar(&a.cfg.RedisAddr, "redis-addr", a.cfg.RedisAddr, "Redis address for sessions; empty keeps sessions in memory")
	f.StringVar(&a.cfg.RedisPassword, "redis-password", a.cfg.RedisPassword, "Redis password")
	f.IntVar(&a.cfg.RedisDB, "redis-db", a.cfg.RedisDB, "Redis database number")
	f.DurationVar(&a.cfg.SessionTTL, "session-ttl", a.cfg.SessionTTL, "session lifetime")
	return cmd
}

// userMessage renders a failure kind the way the CLI shows it.
func userMessage(err error) string {
	var quota *library.QuotaError
	switch {
	case errors.As(err, &quota):
		return "Error: " + quota.Error()
	case errors.Is(err, library.ErrInternal):
		return "Error: something went wrong, see the log for details"
	case errors.Is(err, library.ErrAuthFail):
		return "Authentication failed: wrong user id or password"
	case errors.Is(err, library.ErrNoBook):
		return "Error: the book does not exist or is out of stock"
	case errors.Is(err, library.ErrHasBorrowed):
		return "Error: you already borrowed this book and have not returned it"
	case errors.Is(err, library.ErrNotFound):
		return "Error: record does not exist or is already returned"
	case errors.Is(err, library.ErrForbidden):
		return "Error: you are not allowed to do this"
	}
	return "Error: " + err.Error()
}
