package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/syssam/relgraph/access"
	"github.com/syssam/relgraph/seed"
	"github.com/syssam/relgraph/store"
)

type initOptions struct {
	force  bool
	noSeed bool
	stats  bool
}

func newInitCmd(a *app) *cobra.Command {
	opts := &initOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the tables of the models and load the seed data",
		Long: `Create the tables, foreign keys and join tables of the models, then insert
the seed records in dependency order inside one transaction.

With access.enabled the default access models and records are included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			g, err := a.graph()
			if err != nil {
				return err
			}
			db, err := openStore(ctx, a.cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer db.close()
			if opts.stats {
				defer func() {
					fmt.Fprintf(cmd.OutOrStdout(), "statements: %s\n", db.stats.QueryStats().Stats())
				}()
			}
			if err := store.Sync(ctx, db, g, opts.force); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d entities\n", len(g.Entities()))
			if opts.noSeed {
				return nil
			}

			ld := seed.New(g, db,
				seed.WithLogger(a.logger),
				seed.WithStrictDependencies(a.cfg.Seed.Strict),
				seed.WithConcurrency(a.cfg.Seed.Concurrency),
			)
			if a.cfg.Access.Enabled {
				if err := access.Seed(ld, a.cfg.Access.StaticSalt); err != nil {
					return err
				}
			}
			if err := ld.LoadFS(os.DirFS(a.baseDir()), a.cfg.Seed.Files...); err != nil {
				return err
			}
			report, err := ld.Commit(ctx)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.force, "force", false, "drop existing tables first")
	cmd.Flags().BoolVar(&opts.noSeed, "no-seed", false, "only create the tables")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "print statement counters when done")
	return cmd
}

func printReport(w io.Writer, r *seed.Report) {
	entities := make([]string, 0, len(r.Inserted))
	for e := range r.Inserted {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	for _, e := range entities {
		fmt.Fprintf(w, "inserted %d %s\n", r.Inserted[e], e)
	}
	fmt.Fprintf(w, "wired %d associations\n", r.Wired)
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}
