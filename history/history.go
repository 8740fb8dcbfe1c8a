// Package history records broadcast chat lines and the URLs they carried in
// a local SQLite database. The bot treats history as optional: a nil *Store
// simply disables the features that need it.
package history

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/punchagan/childrens-park/textutil"
)

type Line struct {
	ID        uint   `gorm:"primaryKey"`
	Sender    string `gorm:"index"`
	Nick      string
	Text      string
	CreatedAt time.Time `gorm:"index"`
}

type URLEntry struct {
	ID        uint `gorm:"primaryKey"`
	Nick      string
	URL       string    `gorm:"size:2048"`
	CreatedAt time.Time `gorm:"index"`
}

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the history database at dsn and migrates
// the schema. SQLite tolerates one writer, so the pool is pinned to a single
// connection.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("history: access pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Line{}, &URLEntry{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores one broadcast line and indexes any URLs found in it.
func (s *Store) Record(sender, nick, text string) error {
	line := Line{Sender: sender, Nick: nick, Text: text}
	if err := s.db.Create(&line).Error; err != nil {
		return fmt.Errorf("history: record line: %w", err)
	}
	for _, u := range textutil.ExtractURLs(text) {
		entry := URLEntry{Nick: nick, URL: u}
		if err := s.db.Create(&entry).Error; err != nil {
			return fmt.Errorf("history: record url: %w", err)
		}
	}
	return nil
}

// Recent returns the latest n lines, newest first.
func (s *Store) Recent(n int) ([]Line, error) {
	var lines []Line
	if err := s.db.Order("id DESC").Limit(n).Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("history: recent lines: %w", err)
	}
	return lines, nil
}

// RecentURLs returns the latest n shared URLs, newest first.
func (s *Store) RecentURLs(n int) ([]URLEntry, error) {
	var entries []URLEntry
	if err := s.db.Order("id DESC").Limit(n).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("history: recent urls: %w", err)
	}
	return entries, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
