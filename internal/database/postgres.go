package database

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	auth := cfg.Postgres
	if auth.Username == "" || auth.Database == "" {
		return "", errors.New("postgres configuration requires username and database name")
	}

	host := auth.Host
	if host == "" {
		host = "localhost"
	}

	port := auth.Port
	if port == 0 {
		port = 5432
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable",
		host, port, auth.Username, auth.Database)
	if auth.Password != "" {
		dsn += fmt.Sprintf(" password=%s", auth.Password)
	}

	return dsn, nil
}
