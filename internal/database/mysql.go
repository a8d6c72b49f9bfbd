package database

import (
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	auth := cfg.MySQL
	if auth.Username == "" || auth.Database == "" {
		return "", errors.New("mysql configuration requires username and database name")
	}

	host := auth.Host
	if host == "" {
		host = "localhost"
	}

	port := auth.Port
	if port == 0 {
		port = 3306
	}

	credentials := auth.Username
	if auth.Password != "" {
		credentials += ":" + auth.Password
	}

	return fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		credentials, host, port, auth.Database), nil
}
