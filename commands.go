package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"ms-registration/internal/catalog"
	"ms-registration/internal/database/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	run := func(apply func(*migrations.Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, log := bootstrap()
			defer log.Close()

			bunDB, err := connectDB(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer bunDB.Close()

			runner := migrations.NewRunner(bunDB, log)
			defer runner.Close()
			return apply(runner)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run((*migrations.Runner).Up),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE:  run((*migrations.Runner).Down),
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Move N migrations up, or down when N is negative",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				return run(func(r *migrations.Runner) error { return r.Steps(n) })(cmd, args)
			},
		},
	)
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the event catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Load events and ticket tiers from a YAML feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := bootstrap()
			defer log.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			bunDB, err := connectDB(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer bunDB.Close()

			result, err := catalog.NewStore(bunDB).Import(cmd.Context(), f, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d events\n", result.Imported)
			keys := make([]string, 0, len(result.Rejected))
			for k := range result.Rejected {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "rejected %s: %s\n", k, result.Rejected[k])
			}
			return nil
		},
	})
	return cmd
}
