package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	migrate "github.com/rubenv/sql-migrate"

	"egyptoai/internal/adapter/sqlite"
	"egyptoai/internal/infra/config"
)

// runMigrate brings the schema up to date, or rolls every migration back.
func runMigrate(ctx context.Context, out io.Writer, cfgPath, direction string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Open always migrates up.
	db, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch direction {
	case "up":
		fmt.Fprintf(out, "database %s is up to date\n", cfg.Store.Path)
	case "down":
		n, err := db.Migrate(migrate.Down)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rolled back %d migration(s) on %s\n", n, cfg.Store.Path)
	default:
		return errors.New("direction must be up or down")
	}
	return nil
}

func runEncrypt(out io.Writer, value, passphrase string) error {
	if passphrase == "" {
		return errors.New("EGYPTOAI_CONFIG_KEY must be set")
	}
	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "enc:"+enc)
	return nil
}
