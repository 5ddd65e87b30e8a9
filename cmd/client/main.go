package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medpredict/internal/config"
	"medpredict/internal/logging"
	"medpredict/internal/nav"
	"medpredict/internal/predict"
	"medpredict/internal/session"
	"medpredict/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the per-invocation state shared by subcommands.
type app struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	log     *zap.Logger
	store   storage.Store
	session *session.Provider
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "medpredict",
		Short: "HealthPredict command line client",
		Long: `Manages the local HealthPredict session and submits vitals for a
prediction. The session token is kept under ~/.medpredict by default.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.setup() },
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c",
		filepath.Join(config.DefaultDir(), "config.yaml"), "path to YAML config")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.statusCmd(),
		a.navCmd(),
		a.predictCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	// The CLI talks to a terminal; keep it quiet unless asked.
	lc := cfg.Logging
	lc.Format = "console"
	if !a.verbose {
		lc.Level = "warn"
	}
	if a.log, err = logging.New(lc, a.verbose); err != nil {
		return err
	}

	st, err := storage.Open(storage.Options{
		Backend:       cfg.Session.Storage.Backend,
		Dir:           cfg.Session.Storage.Dir,
		MasterKeyFile: cfg.Session.Storage.MasterKeyFile,
	})
	if err != nil {
		a.log.Warn("session storage unavailable, continuing unauthenticated", zap.Error(err))
		st = nil
	}
	a.store = st
	a.session = session.New(st, session.WithLogger(a.log), session.WithVerifier(verifierFor(cfg)))
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Debug("closing session storage", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func verifierFor(cfg *config.Config) session.Verifier {
	switch cfg.Session.Verify.Mode {
	case config.VerifyJWT:
		return session.NewJWTVerifier(cfg.Session.Verify.JWTSecret)
	case config.VerifyRemote:
		return session.NewRemoteVerifier(cfg.Session.Verify.AuthURL, cfg.GetVerifyTimeout())
	default:
		return session.NoopVerifier{}
	}
}

// ===== Session commands =====

func (a *app) loginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("--token must not be empty")
			}
			a.session.Login(token)
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token issued by the auth service")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if a.session.IsAuthenticated() {
				fmt.Fprintln(out, "Logged out.")
			} else {
				fmt.Fprintln(out, "Already logged out.")
			}
			if next := nav.Logout(a.session, path); next != "" {
				fmt.Fprintf(out, "Redirect: %s\n", next)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "/", "page the logout was triggered from")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is held",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if verify {
				v := a.session.Verify(cmd.Context())
				fmt.Fprintf(out, "verification: %s\n", v.Outcome)
				if v.Err != nil && v.Outcome == session.Unreachable {
					fmt.Fprintf(out, "reason: %v\n", v.Err)
				}
			}
			st := a.session.Snapshot()
			fmt.Fprintf(out, "authenticated: %t\n", st.IsAuthenticated())
			if st.User != nil {
				if st.User.Username != "" {
					fmt.Fprintf(out, "user: %s <%s>\n", st.User.Username, st.User.Email)
				} else {
					fmt.Fprintf(out, "user: %s\n", st.User.Email)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "check the token with the configured verifier first")
	return cmd
}

func (a *app) navCmd() *cobra.Command {
	var (
		path  string
		back  bool
		watch bool
		width int
	)
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Render the navigation bar for a page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			draw := func(st session.State) {
				fmt.Fprintln(out, nav.Render(nav.Build(path, back, st), width))
			}
			draw(a.session.Snapshot())
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cancel := a.session.Subscribe(draw)
			defer cancel()
			if err := a.session.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				if errors.Is(err, session.ErrNotWatchable) {
					return fmt.Errorf("--watch needs the file or encrypted backend, not %q: %w",
						a.cfg.Session.Storage.Backend, err)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "/", "current page path")
	cmd.Flags().BoolVar(&back, "back", false, "show the back button instead of the brand")
	cmd.Flags().BoolVar(&watch, "watch", false, "redraw when the session changes on disk")
	cmd.Flags().IntVar(&width, "width", 80, "bar width in columns")
	return cmd
}

// ===== Configuration =====

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the client configuration",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
			}
			if err := a.cfg.Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

// ===== Prediction =====

func (a *app) predictCmd() *cobra.Command {
	var (
		p      predict.Payload
		server string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Submit vitals to the prediction proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if server == "" {
				server = a.cfg.Client.ServerURL
			}
			endpoint := strings.TrimRight(server, "/") + "/api/predict"
			client := predict.NewClient(endpoint, a.cfg.GetClientTimeout(), predict.WithClientLogger(a.log))

			raw, err := client.Predict(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), raw)
		},
	}
	f := cmd.Flags()
	f.Int64Var(&p.Age, "age", 0, "age in years")
	f.Int64Var(&p.BloodPressure, "blood-pressure", 0, "systolic blood pressure (mmHg)")
	f.Int64Var(&p.Cholesterol, "cholesterol", 0, "total cholesterol (mg/dL)")
	f.Int64Var(&p.Glucose, "glucose", 0, "fasting glucose (mg/dL)")
	f.StringVar(&server, "server", "", "proxy base URL (overrides config)")
	for _, name := range []string{"age", "blood-pressure", "cholesterol", "glucose"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func printResult(w io.Writer, raw json.RawMessage) error {
	var res struct {
		Disease    string   `json:"disease"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Disease == "" || res.Confidence == nil {
		// Unknown shape; the service owns it, so show it as is.
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}
	_, err := fmt.Fprintf(w, "disease: %s\nconfidence: %.1f%%\n", res.Disease, *res.Confidence*100)
	return err
}
