package countdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE daily_statistics(
			id INTEGER PRIMARY KEY,
			date_recorded TEXT NOT NULL,
			car_count INT NOT NULL DEFAULT 0,
			truck_count INT NOT NULL DEFAULT 0,
			bus_count INT NOT NULL DEFAULT 0,
			motorcycle_count INT NOT NULL DEFAULT 0,
			bicycle_count INT NOT NULL DEFAULT 0,
			total_count INT NOT NULL DEFAULT 0,
			created_at INT NOT NULL
		);

		CREATE INDEX idx_daily_statistics_date_recorded ON daily_statistics (date_recorded);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE daily_statistics ADD COLUMN source TEXT NOT NULL DEFAULT '';
	`))

	return migs
}
