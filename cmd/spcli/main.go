// Command spcli talks to a SharePoint site from the terminal: it lists and
// counts items, uploads files, looks up users, mirrors lists into a local
// database and composes OData query fragments.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nlstn/go-sprest"
	"github.com/spf13/cobra"
)

// app carries state shared by the subcommands.
type app struct {
	configPath string
	output     string

	cfg    *Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "spcli",
		Short:         "SharePoint REST command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default ./spcli.yaml or ~/.config/spcli/spcli.yaml)")
	flags.String("site", "", "absolute URL of the SharePoint web")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: tint, text, json")
	flags.StringVarP(&a.output, "output", "o", "json", "output format: json or yaml")

	root.AddCommand(
		newQueryCmd(a),
		newListsCmd(a),
		newItemsCmd(a),
		newCountCmd(a),
		newUniqueCmd(a),
		newUploadCmd(a),
		newGroupUsersCmd(a),
		newMeCmd(a),
		newBizdaysCmd(a),
		newMirrorCmd(a),
	)
	return root
}

// client builds a SharePoint client from the loaded configuration.
func (a *app) client() (*sprest.Client, error) {
	cfg, err := a.cfg.clientConfig()
	if err != nil {
		return nil, err
	}
	return sprest.NewClient(cfg, sprest.WithLogger(a.logger))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "spcli:", err)
		stop()
		os.Exit(1)
	}
}
