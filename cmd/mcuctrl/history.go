package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mcuctrl/internal/history"
	"github.com/nerrad567/mcuctrl/internal/infrastructure/database"
	"github.com/nerrad567/mcuctrl/migrations"
)

// errHistoryDisabled is returned by history commands when database.enabled is false.
var errHistoryDisabled = errors.New("history database is disabled (set database.enabled)")

const day = 24 * time.Hour

// historyStore bundles the open history database with its repository and
// the observer that feeds it.
type historyStore struct {
	db       *database.DB
	repo     *history.SQLiteRepository
	recorder *history.Recorder
}

// openHistory opens and migrates the history database. It returns nil
// without error when history is disabled.
func (a *app) openHistory(ctx context.Context) (*historyStore, error) {
	if !a.cfg.Database.Enabled {
		return nil, nil
	}

	db, err := database.Open(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	repo := history.NewSQLiteRepository(db.DB)
	return &historyStore{
		db:       db,
		repo:     repo,
		recorder: history.NewRecorder(repo, a.log),
	}, nil
}

// retention returns the configured history age limit, or zero when
// records are kept forever.
func (a *app) retention() time.Duration {
	return time.Duration(a.cfg.Database.RetentionDays) * day
}

func (s *historyStore) Close() error {
	return s.db.Close()
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded reconcile passes and register writes",
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "maximum number of records")

	withStore := func(run func(cmd *cobra.Command, s *historyStore) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			s, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			if s == nil {
				return errHistoryDisabled
			}
			defer s.Close()
			return run(cmd, s)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "passes",
		Short: "List reconcile passes, newest first",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, s *historyStore) error {
			passes, err := s.repo.ListPasses(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tPASS\tPWM_MIN\tPWM_MAX\tBRIGHTNESS\tCORRECTIONS\tERROR")
			for _, p := range passes {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					p.StartedAt.Local().Format(time.DateTime), p.ID,
					p.PWMMin, p.PWMMax, p.Brightness, p.Corrections, p.Error)
			}
			return tw.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "writes",
		Short: "List register writes, newest first",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, s *historyStore) error {
			writes, err := s.repo.ListWrites(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WRITTEN\tREGISTER\tVALUE\tKIND\tSOURCE\tPASS")
			for _, w := range writes {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					w.WrittenAt.Local().Format(time.DateTime), w.Register,
					w.Value, w.Kind, w.Source, w.PassID)
			}
			return tw.Flush()
		}),
	})

	return cmd
}
