package main

import (
	"fmt"
	"time"

	"github.com/gunmark-data/marks.report/internal/config"
	"github.com/gunmark-data/marks.report/internal/store"
	"github.com/gunmark-data/marks.report/internal/version"
)

// dispatch routes the optional subcommand; no argument runs the daemon.
func dispatch(cmd string, cfg *config.Config) error {
	switch cmd {
	case "", "run":
		return runDaemon(cfg)
	case "migrate":
		return runMigrate(cfg)
	case "sessions":
		return runSessions(cfg)
	case "version":
		fmt.Println(version.String())
		return nil
	}
	return fmt.Errorf("unknown command %q, want run, migrate, sessions or version", cmd)
}

// openStore opens the configured database and brings the schema up to
// date.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.GetDBPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.MigrateUp(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return st, nil
}

func runMigrate(cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	schemaVersion, dirty, err := st.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Printf("%s: schema version %d (dirty=%v)\n", cfg.GetDBPath(), schemaVersion, dirty)
	return nil
}

func runSessions(cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.RecentSessions(20)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("#%-4d %-24s %s  battles=%-3d  %.2f%% -> %.2f%% (%+.2f)\n",
			s.ID, s.TankName, time.Unix(int64(s.StartedAt), 0).Format("2006-01-02 15:04"),
			s.Battles, s.StartMoe, s.EndMoe, s.Delta())
	}
	return nil
}
