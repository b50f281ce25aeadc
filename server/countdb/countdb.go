// Package countdb stores saved count statistics in an sqlite database
package countdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// Number of rows returned by RecentStatistics when no limit is given
const DefaultRecentLimit = 30

type CountDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create the database
func Open(logger logs.Log, dbFilename string) (*CountDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbFilename), 0777); err != nil {
		return nil, err
	}
	logger.Infof("Opening count DB at '%v'", dbFilename)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &CountDB{
		Log: logger,
		DB:  db,
	}, nil
}

func (c *CountDB) Close() {
	if sqlDB, err := c.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// SaveStatistics records the counts of a session, as of time 'at'
func (c *CountDB) SaveStatistics(source string, counts counting.Counts, at time.Time) (*DailyStatistics, error) {
	row := &DailyStatistics{
		Source:       source,
		DateRecorded: at.Format("2006-01-02"),
		CreatedAt:    dbh.MakeIntTime(at),
	}
	row.setCounts(counts)
	if err := c.DB.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// RecentStatistics returns the most recently recorded rows, newest first.
// If limit is not positive, DefaultRecentLimit is used.
func (c *CountDB) RecentStatistics(limit int) ([]DailyStatistics, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows := []DailyStatistics{}
	if err := c.DB.Order("date_recorded DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
