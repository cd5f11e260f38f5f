package db

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/logger"
)

var DB *gorm.DB

// Initialize opens the database selected by cfg.DBDriver.
func Initialize(cfg *config.Config) error {
	logLevel := gormlogger.Info
	if cfg.IsProduction() {
		logLevel = gormlogger.Warn
	}

	dialector, err := openDialector(cfg)
	if err != nil {
		return err
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Infof("Database connection established (driver: %s)", cfg.DBDriver)
	return nil
}

func openDialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		return postgres.Open(cfg.DatabaseURL), nil
	case "libsql":
		if cfg.TursoDatabaseURL == "" {
			return nil, fmt.Errorf("TURSO_DATABASE_URL is required for the libsql driver")
		}
		dsn, err := libsqlDSN(cfg.TursoDatabaseURL, cfg.TursoAuthToken)
		if err != nil {
			return nil, err
		}
		conn, err := sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open libsql connection: %w", err)
		}
		return sqlite.New(sqlite.Config{DriverName: "libsql", Conn: conn}), nil
	default:
		// WAL mode for concurrent readers
		return sqlite.Open(cfg.DBPath + "?_journal_mode=WAL&_busy_timeout=5000"), nil
	}
}

func libsqlDSN(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid TURSO_DATABASE_URL: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("authToken", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// AutoMigrate runs database migrations for the provided models
func AutoMigrate(models ...interface{}) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Infof("Database migrations completed")
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}
