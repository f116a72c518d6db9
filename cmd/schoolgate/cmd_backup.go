package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/schoolgate/schoolgate/internal/backup"
	"github.com/schoolgate/schoolgate/internal/server"
)

// runBackup implements the "schoolgate backup" subcommand: archive the
// database and config file into a gzipped tarball.
func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	output := fs.String("output", "", "archive path (default schoolgate-backup-<date>.tar.gz)")
	_ = fs.Parse(args)

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "schoolgate.db"
	}
	archive := *output
	if archive == "" {
		archive = fmt.Sprintf("schoolgate-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	if err := backup.Backup(context.Background(), dbPath, viperCfg.ConfigFileUsed(), archive); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s\n", archive)
}

// runRestore implements the "schoolgate restore" subcommand.
func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	target := fs.String("target", ".", "directory to restore into")
	force := fs.Bool("force", false, "overwrite existing files")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: schoolgate restore [flags] <archive.tar.gz>")
		os.Exit(1)
	}

	if err := backup.Restore(context.Background(), fs.Arg(0), *target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored to %s\n", *target)
}
