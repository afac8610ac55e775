// Command reconcile cross-checks the photo folder tree against the
// database. Registration can leave a folder behind when a duplicate
// national ID is rejected, and folder deletion during sweeps is best
// effort, so disk and database drift apart over time. The report lists
// folders with no backing row and rows whose folder is gone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/soto-labs/registro-api/pkg/config"
	"github.com/soto-labs/registro-api/pkg/database"
)

func main() {
	var (
		photoRoot string
		fix       bool
		timeout   time.Duration
	)

	flag.StringVar(&photoRoot, "photo-root", "", "Photo folder root (defaults to PHOTO_ROOT from the environment)")
	flag.BoolVar(&fix, "fix", false, "Delete orphaned folders instead of only reporting them")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Database query timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if photoRoot == "" {
		photoRoot = cfg.Storage.PhotoRoot
	}
	root, err := filepath.Abs(photoRoot)
	if err != nil {
		log.Fatalf("failed to resolve photo root: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	known := make(map[string]string)
	rows := []struct {
		ID         int64  `db:"id"`
		FolderPath string `db:"folder_path"`
		Kind       string `db:"kind"`
	}{}
	query := `
		SELECT id, folder_path, 'resident' AS kind FROM residents
		UNION ALL
		SELECT id, folder_path, 'visit' AS kind FROM visits`
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		log.Fatalf("failed to load records: %v", err)
	}
	for _, row := range rows {
		abs, err := filepath.Abs(row.FolderPath)
		if err != nil {
			continue
		}
		known[abs] = fmt.Sprintf("%s/%d", row.Kind, row.ID)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		log.Fatalf("failed to read photo root %s: %v", root, err)
	}
	onDisk := make(map[string]struct{}, len(entries))
	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folder := filepath.Join(root, entry.Name())
		onDisk[folder] = struct{}{}
		if _, ok := known[folder]; !ok {
			orphans = append(orphans, folder)
		}
	}

	var missing []string
	for folder, ref := range known {
		if _, ok := onDisk[folder]; !ok {
			missing = append(missing, fmt.Sprintf("%s (%s)", folder, ref))
		}
	}

	fmt.Printf("Records in database: %d\n", len(rows))
	fmt.Printf("Folders on disk:     %d\n", len(onDisk))
	fmt.Printf("Orphaned folders:    %d\n", len(orphans))
	for _, folder := range orphans {
		fmt.Printf("  orphan: %s\n", folder)
		if fix {
			if err := os.RemoveAll(folder); err != nil {
				fmt.Printf("    failed to remove: %v\n", err)
			} else {
				fmt.Println("    removed")
			}
		}
	}
	fmt.Printf("Rows missing folder: %d\n", len(missing))
	for _, entry := range missing {
		fmt.Printf("  missing: %s\n", entry)
	}

	if len(orphans) > 0 && !fix {
		os.Exit(1)
	}
}
