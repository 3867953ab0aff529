// Command atlasctl performs out-of-band administration on the atlas database.
//
// USAGE:
//
//	atlasctl [-config path] migrate
//	atlasctl [-config path] users
//	atlasctl [-config path] set-role <user-id> <INVITED|CONTRIBUTOR|ADMIN>
//
// set-role is how the first administrator is created: nobody can grant ADMIN
// over HTTP until an ADMIN exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sakif/item-atlas/internal/config"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
	sqliteRepo "github.com/sakif/item-atlas/internal/repository/sqlite"
)

var errUsage = errors.New("usage: atlasctl [-config path] migrate | users | set-role <user-id> <ROLE>")

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	flag.Parse()

	if err := run(context.Background(), *configPath, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "atlasctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// sqlite.New migrates on open, so "migrate" is opening and reporting.
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "migrate":
		version, dirty, err := db.SchemaVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "schema at version %d (dirty=%t)\n", version, dirty)
		return nil

	case "users":
		return listUsers(ctx, db.Users(), out)

	case "set-role":
		if len(args) != 3 {
			return errUsage
		}
		return setRole(ctx, db.Users(), args[1], args[2], out)
	}

	return errUsage
}

func listUsers(ctx context.Context, users repository.UserRepository, out io.Writer) error {
	list, err := users.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tDISCORD ID\tNAME")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Role, u.ExternalID, u.DisplayName)
	}
	return tw.Flush()
}

func setRole(ctx context.Context, users repository.UserRepository, id, roleArg string, out io.Writer) error {
	role, err := model.ParseRole(roleArg)
	if err != nil {
		return err
	}
	if err := users.SetRole(ctx, id, role); err != nil {
		return err
	}
	fmt.Fprintf(out, "user %s is now %s\n", id, role)
	return nil
}
