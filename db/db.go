package db

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"saffron/resource"
)

type Connection struct {
	config resource.Config
	*sqlx.DB
}

func (c Connection) Teardown() error {
	if config, ok := c.config.(SQLiteConfig); ok {
		os.Remove(config.DBname)
	}
	return nil
}

func (c Connection) Close() error {
	return c.DB.Close()
}

func (c Connection) Type() resource.Type {
	return resource.DBConnection
}

//=================================
// SQLite config for db connection
//=================================

// SQLiteConfig materializes a throwaway file-backed database. Only used in
// tests; the DDL in the schema is restricted to the subset both engines
// accept.
type SQLiteConfig struct {
	DBname string
	Schema Schema
}

var _ resource.Config = SQLiteConfig{}

func (conf SQLiteConfig) Materialize() (resource.Resource, error) {
	os.Remove(conf.DBname)

	file, err := os.Create(conf.DBname)
	if err != nil {
		return nil, err
	}
	file.Close()

	DB, err := sqlx.Open("sqlite3", fmt.Sprintf("./%s", conf.DBname))
	if err != nil {
		return nil, err
	}
	conn := Connection{config: conf, DB: DB}
	if err = SyncSchema(conn, conf.Schema); err != nil {
		return nil, err
	}
	return conn, nil
}

//=================================
// MySQL config for db connection
//=================================

type MySQLConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Schema   Schema
}

var _ resource.Config = MySQLConfig{}

func (conf MySQLConfig) Materialize() (resource.Resource, error) {
	connectStr := fmt.Sprintf(
		"%s:%s@tcp(%s)/%s?tls=true",
		conf.Username, conf.Password, conf.Host, conf.DBname,
	)

	DB, err := sqlx.Open("mysql", connectStr)
	if err != nil {
		return nil, err
	}
	conn := Connection{config: conf, DB: DB}
	if err = SyncSchema(conn, conf.Schema); err != nil {
		return nil, err
	}
	return conn, nil
}
