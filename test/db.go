package test

import (
	"fmt"

	"saffron/db"
	"saffron/lib/ftypes"
	"saffron/tier"
)

func defaultDB(tierID ftypes.RealmID) (db.Connection, error) {
	config := db.SQLiteConfig{
		DBname: fmt.Sprintf("saffron_test_%d.db", tierID),
		Schema: tier.Schema,
	}
	resource, err := config.Materialize()
	if err != nil {
		return db.Connection{}, err
	}
	return resource.(db.Connection), nil
}
