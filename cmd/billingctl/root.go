package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	appconfig "github.com/wolfman30/ace-billing/internal/config"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/session"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

var errNotSignedIn = errors.New("not signed in; run `billingctl login`")

// cli carries the resolved configuration and the lazily built app.
type cli struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	app    *bootstrap.App
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operator CLI for the ACE billing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.billingctl.yaml)")
	flags.String("api-url", "", "billing API base URL")
	flags.String("session-file", "", "where the session token is kept")
	flags.StringP("output", "o", "table", "output format: table, json or yaml")
	flags.String("log-level", "warn", "log level")
	for _, name := range []string{"config", "api-url", "session-file", "output", "log-level"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.patientsCmd(),
		c.casesCmd(),
		c.reportCmd(),
	)
	return root
}

func (c *cli) loadConfig() error {
	c.v.SetEnvPrefix("BILLING")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if file := c.v.GetString("config"); file != "" {
		c.v.SetConfigFile(file)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
		c.v.SetConfigName(".billingctl")
		c.v.SetConfigType("yaml")
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	switch c.v.GetString("output") {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown output format %q", c.v.GetString("output"))
	}
	return nil
}

// config overlays the CLI settings on the environment configuration.
func (c *cli) config() *appconfig.Config {
	cfg := appconfig.Load()
	if url := c.v.GetString("api-url"); url != "" {
		cfg.APIBaseURL = strings.TrimRight(url, "/")
	}
	if file := c.v.GetString("session-file"); file != "" {
		cfg.SessionFile = file
	}
	// a memory session would not survive between invocations
	if cfg.SessionBackend == bootstrap.SessionBackendMemory {
		cfg.SessionBackend = bootstrap.SessionBackendFile
	}
	return cfg
}

// build assembles the app once per invocation.
func (c *cli) build(ctx context.Context) (*bootstrap.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg := c.config()
	logger := logging.NewWithWriter(c.stderr, c.v.GetString("log-level"))

	tokens, err := bootstrap.BuildTokenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.app = bootstrap.NewApp(cfg, logger, bootstrap.Deps{
		TokenStore: tokens,
		Toaster:    stderrToaster{w: c.stderr},
		Navigator: session.NavigatorFunc(func(string) {
			fmt.Fprintln(c.stderr, "session expired; run `billingctl login`")
		}),
	})
	return c.app, nil
}

// signedIn builds the app and restores the persisted session.
func (c *cli) signedIn(ctx context.Context) (*bootstrap.App, error) {
	app, err := c.build(ctx)
	if err != nil {
		return nil, err
	}
	if !app.Session.Restore(ctx) {
		return nil, errNotSignedIn
	}
	return app, nil
}

type stderrToaster struct{ w io.Writer }

func (t stderrToaster) Toast(_ context.Context, toast notify.Toast) {
	prefix := "info"
	if toast.Variant == notify.VariantDestructive {
		prefix = "error"
	}
	if toast.Title != "" {
		fmt.Fprintf(t.w, "%s: %s: %s\n", prefix, toast.Title, toast.Description)
		return
	}
	fmt.Fprintf(t.w, "%s: %s\n", prefix, toast.Description)
}
