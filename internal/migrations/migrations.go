package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/aite550659-max/agent-trust-protocol/internal/db"
	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
)

//go:embed 001_sync_cursors.sql
var mig001 string

//go:embed 002_hcs_messages.sql
var mig002 string

//go:embed 003_agents.sql
var mig003 string

//go:embed 004_agent_events.sql
var mig004 string

//go:embed 005_rentals.sql
var mig005 string

//go:embed 006_agent_comms.sql
var mig006 string

// RunMigrations runs all migrations for the indexer database.
func RunMigrations(log *logger.Logger, database *sql.DB) error {
	migrations := []db.Migration{
		{
			ID:  "001_sync_cursors.sql",
			SQL: mig001,
		},
		{
			ID:  "002_hcs_messages.sql",
			SQL: mig002,
		},
		{
			ID:  "003_agents.sql",
			SQL: mig003,
		},
		{
			ID:  "004_agent_events.sql",
			SQL: mig004,
		},
		{
			ID:  "005_rentals.sql",
			SQL: mig005,
		},
		{
			ID:  "006_agent_comms.sql",
			SQL: mig006,
		},
	}

	return db.RunMigrationsDB(log, database, migrations)
}
