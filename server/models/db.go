package models

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	sqliteEncrypt "github.com/Daskott/gorm-sqlite-cipher"
	"github.com/sheguard/sheguard/server/logger"
	"github.com/sheguard/sheguard/utils"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const DB_NAME = "sheguard.db"

var logg = logger.NewLogger()
var db *gorm.DB

var testDbCount int

// AutoMigrate auto-migrates the db schema and inserts seed data
func AutoMigrate(passPhrase string, dbRootDir string) error {
	dbDSNVal, err := dbDSN(passPhrase, dbRootDir)
	if err != nil {
		return fmt.Errorf("failed to set sqlite DSN: %v", err)
	}

	err = openDB(dbDSNVal)
	if err != nil {
		return err
	}

	migrateAndSeed()

	return nil
}

// InitializeTestDb swaps the package db for a fresh in-memory one.
// Only for use in tests.
func InitializeTestDb() {
	testDbCount++
	err := openDB(fmt.Sprintf("file:testdb%v?mode=memory&cache=shared", testDbCount))
	if err != nil {
		logg.Panic(err)
	}

	migrateAndSeed()
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func openDB(dsn string) error {
	var err error

	db, err = gorm.Open(sqliteEncrypt.Open(dsn), &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				LogLevel:                  gormLogger.Silent,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %v", err)
	}

	return nil
}

func migrateAndSeed() {
	db.AutoMigrate(
		&JobStatus{}, &Job{},
		&User{}, &Contact{},
		&Vault{}, &VaultFile{},
		&PanicEvent{}, &RecentFile{},
		&TrackingSession{}, &TrackingFix{},
	)

	if err := db.First(&JobStatus{}).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		logg.Info("Inserting seed data into 'JobStatus'")
		db.Create(&[]JobStatus{
			{Name: ENQUEUED_JOB}, {Name: IN_PROGRESS_JOB},
			{Name: SUCCESSFUL_JOB}, {Name: DEAD_JOB}, {Name: SCHEDULED_JOB},
		})
	}
}

func dbDSN(passPhrase string, dbRootDir string) (string, error) {
	dbDir, err := DbDirectory(dbRootDir)
	if err != nil {
		return "", err
	}

	dbFilePath := filepath.Join(dbDir, DB_NAME)
	dbName := fmt.Sprintf("file:%v", dbFilePath)

	return fmt.Sprintf(
		"%v?_pragma_key=%s&_pragma_cipher_page_size=4096&_journal_mode=WAL",
		dbName,
		passPhrase,
	), nil
}

func DbDirectory(dbRootDir string) (string, error) {
	dbDir := filepath.Join(dbRootDir, "db")

	err := utils.CreateDirIfNotExist(dbDir)
	if err != nil {
		return "", err
	}

	return dbDir, nil
}
