package cliplugins

import (
	"context"
	"database/sql"
	"fmt"

	"deskd/internal/storage/sqlite"
	"deskd/pkg/migrator"

	"github.com/spf13/cobra"
)

type MigrateCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewMigrateCommand(app *AppContext) *MigrateCommand {
	return &MigrateCommand{app: app}
}

func (m *MigrateCommand) Meta() *cobra.Command {
	if m.cmd != nil {
		return m.cmd
	}
	m.cmd = &cobra.Command{
		Use:       "migrate [up|down|version|rollback|to]",
		Short:     "Manage the SQLite state schema",
		Long:      "Applies or rolls back schema migrations of the sqlite storage driver.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version", "rollback", "to"},
	}
	m.cmd.Flags().String("db", "", "path to the SQLite database (overrides storage.path)")
	m.cmd.Flags().String("path", "", "migrations directory (default: migrations built into the binary)")
	m.cmd.Flags().Uint("version", 0, "target version for 'to'")
	m.cmd.Flags().Int("steps", 1, "number of steps for 'rollback'")
	return m.cmd
}

func (m *MigrateCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, log, err := m.app.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	dbPath := cfg.Storage.Path
	if v, _ := flags.GetString("db"); v != "" {
		dbPath = v
	}
	mc := migrator.Config{FS: sqlite.Migrations()}
	if dir, _ := flags.GetString("path"); dir != "" {
		mc = migrator.Config{MigrationsPath: dir}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	mg := migrator.NewMigrator(db, mc, log)

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	var st migrator.Status
	switch direction {
	case "up":
		st, err = mg.Up(ctx)
	case "down":
		st, err = mg.Down(ctx)
	case "version":
		st, err = mg.Version()
	case "rollback":
		steps, _ := flags.GetInt("steps")
		st, err = mg.Rollback(ctx, steps)
	case "to":
		version, _ := flags.GetUint("version")
		if version == 0 {
			return fmt.Errorf("please specify a target version with --version")
		}
		st, err = mg.To(ctx, version)
	default:
		return fmt.Errorf("unknown migration direction: %s", direction)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema: %s\n", st)
	return nil
}
