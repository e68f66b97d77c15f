package main

import (
	"context"

	"github.com/edecs/academy/storage/database/pgdb"
)

var gooseRunFunc = pgdb.RunMigration // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, arguments...)
}

// migrateRoles rewrites legacy role spellings found in stored records.
func (cli *commandLine) migrateRoles() error {
	n, err := cli.ids.MigrateRoles(context.Background())
	if err != nil {
		return err
	}
	cli.printf("%d records migrated\n", n)
	return nil
}

func (cli *commandLine) reconcile() error {
	n, err := cli.ledger.Reconcile(context.Background())
	if err != nil {
		return err
	}
	cli.printf("%d notifications recreated\n", n)
	return nil
}
