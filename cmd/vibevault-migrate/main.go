package main

import (
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/vibevault/vibevault/pkg/store"
)

var (
	dataDir    = flag.String("data-dir", "", "VibeVault data directory (defaults to the platform config dir)")
	backupPath = flag.String("backup", "", "Path to backup the database before migration (default: <data-dir>/vibevault.db.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("VibeVault Database Migration Tool")
	log.Println("=================================")

	dir := *dataDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			log.Fatalf("Cannot determine data directory: %v", err)
		}
		dir = filepath.Join(base, "vibevault")
	}

	dbPath := filepath.Join(dir, "vibevault.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", dbPath)
	}
	log.Printf("Database: %s", dbPath)

	backupFile := *backupPath
	if backupFile == "" {
		backupFile = dbPath + ".backup"
	}
	log.Printf("Creating backup: %s", backupFile)
	if err := copyFile(dbPath, backupFile); err != nil {
		log.Fatalf("Failed to create backup: %v", err)
	}
	log.Println("Backup created successfully")

	// Opening the store runs the additive migrations and backfills sync
	// metadata on pre-sync rows.
	s, err := store.OpenPath(dbPath)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	defer s.Close()

	log.Println("Migration completed successfully")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
