package db

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
)

// Prompt input and report output, replaceable in tests.
var (
	promptInput  io.Reader = os.Stdin
	reportOutput io.Writer = os.Stdout
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp()
		return fmt.Errorf("missing migrate action")
	}

	action := args[0]
	if action == "help" {
		PrintMigrateHelp()
		return nil
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}

	// Open without running migrations; the command manages the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		return handleMigrateUp(database, migrationsFS)
	case "down":
		return handleMigrateDown(database, migrationsFS)
	case "status":
		return handleMigrateStatus(database, migrationsFS)
	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: motion-report migrate version <version_number>")
		}
		return handleMigrateVersion(database, migrationsFS, args[1])
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: motion-report migrate force <version_number>")
		}
		return handleMigrateForce(database, migrationsFS, args[1])
	case "baseline":
		if len(args) < 2 {
			return fmt.Errorf("usage: motion-report migrate baseline <version_number>")
		}
		return handleMigrateBaseline(database, args[1])
	default:
		PrintMigrateHelp()
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printVersion(database *DB, migrationsFS fs.FS) {
	version, dirty, _ := database.MigrateVersion(migrationsFS)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// handleMigrateUp applies all pending migrations
func handleMigrateUp(database *DB, migrationsFS fs.FS) error {
	log.Printf("Running migrations...")
	if err := database.MigrateUp(migrationsFS); err != nil {
		return err
	}
	log.Println("All migrations applied successfully")
	printVersion(database, migrationsFS)
	return nil
}

// handleMigrateDown rolls back one migration
func handleMigrateDown(database *DB, migrationsFS fs.FS) error {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(migrationsFS); err != nil {
		return err
	}
	log.Println("Migration rolled back successfully")
	printVersion(database, migrationsFS)
	return nil
}

// handleMigrateStatus displays the current migration status
func handleMigrateStatus(database *DB, migrationsFS fs.FS) error {
	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	fmt.Fprintln(reportOutput, "=== Migration Status ===")
	fmt.Fprintf(reportOutput, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(reportOutput, "Latest available: %d\n", status.LatestVersion)
	fmt.Fprintf(reportOutput, "Dirty: %v\n", status.Dirty)
	fmt.Fprintf(reportOutput, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)

	switch {
	case status.Dirty:
		fmt.Fprintln(reportOutput, "\nWARNING: Database is in a dirty state!")
		fmt.Fprintln(reportOutput, "A migration failed mid-execution. Inspect the database, fix it, then run:")
		fmt.Fprintln(reportOutput, "  motion-report migrate force <version>")
	case status.CurrentVersion < status.LatestVersion:
		fmt.Fprintf(reportOutput, "\nDatabase is %d version(s) behind. Run 'motion-report migrate up' to update.\n", status.LatestVersion-status.CurrentVersion)
	default:
		fmt.Fprintln(reportOutput, "\nDatabase is up to date.")
	}
	return nil
}

// handleMigrateVersion migrates to a specific version
func handleMigrateVersion(database *DB, migrationsFS fs.FS, versionStr string) error {
	var targetVersion uint
	if _, err := fmt.Sscanf(versionStr, "%d", &targetVersion); err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	log.Printf("Migrating to version %d...", targetVersion)
	if err := database.MigrateTo(migrationsFS, targetVersion); err != nil {
		return err
	}
	log.Printf("Migrated to version %d successfully", targetVersion)
	return nil
}

// handleMigrateForce forces the migration version (recovery only)
func handleMigrateForce(database *DB, migrationsFS fs.FS, versionStr string) error {
	var forceVersion int
	if _, err := fmt.Sscanf(versionStr, "%d", &forceVersion); err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	fmt.Fprintf(reportOutput, "WARNING: Forcing migration version to %d\n", forceVersion)
	fmt.Fprintln(reportOutput, "This should only be used to recover from a dirty migration state.")
	fmt.Fprint(reportOutput, "Continue? [y/N]: ")

	response, _ := bufio.NewReader(promptInput).ReadString('\n')
	if r := strings.TrimSpace(response); r != "y" && r != "Y" {
		log.Println("Aborted")
		return nil
	}

	if err := database.MigrateForce(migrationsFS, forceVersion); err != nil {
		return err
	}
	log.Printf("Migration version forced to %d", forceVersion)
	return nil
}

// handleMigrateBaseline sets the baseline version without running migrations
func handleMigrateBaseline(database *DB, versionStr string) error {
	var baselineVersion uint
	if _, err := fmt.Sscanf(versionStr, "%d", &baselineVersion); err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	log.Printf("Baselining database at version %d...", baselineVersion)
	if err := database.BaselineAtVersion(baselineVersion); err != nil {
		return fmt.Errorf("baseline failed: %w", err)
	}
	log.Printf("Database baselined at version %d", baselineVersion)
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp() {
	fmt.Fprint(reportOutput, `Database Migration Commands

Usage: motion-report migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  baseline <N>    Set migration version to N without running migrations
  help            Show this help message

Options:
  -db <path>      Path to database file (default: motion_report.db)
`)
}
