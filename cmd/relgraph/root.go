package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syssam/relgraph/access"
	"github.com/syssam/relgraph/config"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/session"
)

// app holds the state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "relgraph",
		Short: "Relational session API synthesizer and data loader",
		Long: `relgraph reads entity models (YAML), builds their association graph and
synthesizes the session operations of every entity and relationship.

Configuration is read from --config (default relgraph.yaml, optional) and
RELGRAPH_ environment variables, e.g. RELGRAPH_DATABASE_DSN.

Examples:
  relgraph inspect
  relgraph generate --watch
  relgraph init --force`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "relgraph.yaml", "configuration file")
	cmd.AddCommand(
		newGenerateCmd(a),
		newInitCmd(a),
		newInspectCmd(a),
	)
	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	load := config.LoadWithDefaults
	if cmd.Flags().Changed("config") {
		load = config.Load
	}
	cfg, err := load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Log.Logger(cmd.ErrOrStderr())
	return nil
}

// baseDir is the directory model and seed patterns are relative to.
func (a *app) baseDir() string {
	return filepath.Dir(a.cfgFile)
}

// graph loads the configured models, plus the access models when enabled.
func (a *app) graph() (*graph.Graph, error) {
	descs, err := schema.LoadFS(os.DirFS(a.baseDir()), a.cfg.Models...)
	if err != nil {
		return nil, err
	}
	if a.cfg.Access.Enabled {
		models, err := access.Models()
		if err != nil {
			return nil, err
		}
		descs = append(models, descs...)
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("no models match %v in %s", a.cfg.Models, a.baseDir())
	}
	return graph.Load(descs...)
}

// table synthesizes the operation table of the configured models.
func (a *app) table() (*session.Table, error) {
	g, err := a.graph()
	if err != nil {
		return nil, err
	}
	return session.NewSynthesizer(g,
		session.WithDepth(a.cfg.Graph.EagerDepth),
		session.WithSynthLogger(a.logger),
	).Synthesize()
}
