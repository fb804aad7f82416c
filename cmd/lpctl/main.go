// main.go - Admin control tool for leadpulse
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"leadpulse/internal"
	"leadpulse/internal/config"
	"leadpulse/internal/leads"
	"leadpulse/internal/seeder"
	"leadpulse/internal/sessions"
	"leadpulse/internal/settings"
	"leadpulse/internal/timeframe"
	"leadpulse/internal/webhooks"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&ResendWebhooksCommand{},
	&CheckDuplicatesCommand{},
	&ReconcileCommand{},
	&ExportLeadsCommand{},
	&APIKeyCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	if _, ok := cmd.(*HelpCommand); ok {
		_ = cmd.Execute(ctx, nil, args)
		return
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

func requireApp(app *internal.Application, action string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot %s", action)
	}
	return nil
}

// MigrateCommand runs database migrations and seeds default settings
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if err := requireApp(app, "run migrations"); err != nil {
		return err
	}

	log.Println("Running database migrations...")
	if err := app.Prepare(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// ResendWebhooksCommand redelivers every lead whose last webhook attempt failed
type ResendWebhooksCommand struct{}

func (c *ResendWebhooksCommand) Name() string { return "resend-webhooks" }
func (c *ResendWebhooksCommand) Description() string {
	return "Resends failed lead webhooks [--url URL] [--pending]"
}

func (c *ResendWebhooksCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	target := fs.String("url", "", "webhook URL (defaults to the configured one)")
	pending := fs.Bool("pending", false, "also dispatch leads that were never sent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireApp(app, "resend webhooks"); err != nil {
		return err
	}

	cfg := config.GetConfig()
	db := app.DBManager.GetConnection()

	url := strings.TrimSpace(*target)
	if url == "" {
		url = webhooks.ResolveURL(db, cfg)
	}
	if url == "" {
		return fmt.Errorf("no webhook URL configured; pass --url or set LEADPULSE_WEBHOOK_URL")
	}

	relay := webhooks.NewRelayFromConfig(slog.Default(), cfg)
	summary, err := relay.ResendFailed(ctx, db, url)
	if err != nil {
		return err
	}
	fmt.Printf("Failed leads: attempted=%d succeeded=%d failed=%d\n", summary.Attempted, summary.Succeeded, summary.Failed)

	if *pending {
		summary, err = relay.DispatchPending(ctx, db, url, 0)
		if err != nil {
			return err
		}
		fmt.Printf("Pending leads: attempted=%d succeeded=%d failed=%d\n", summary.Attempted, summary.Succeeded, summary.Failed)
	}
	return nil
}

// CheckDuplicatesCommand recomputes the duplicate flag on every lead
type CheckDuplicatesCommand struct{}

func (c *CheckDuplicatesCommand) Name() string        { return "check-duplicates" }
func (c *CheckDuplicatesCommand) Description() string { return "Flags leads sharing a phone number" }

func (c *CheckDuplicatesCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if err := requireApp(app, "check duplicates"); err != nil {
		return err
	}
	updated, err := leads.MarkDuplicates(app.DBManager.GetConnection(), slog.Default())
	if err != nil {
		return err
	}
	fmt.Printf("Leads updated: %d\n", updated)
	return nil
}

// ReconcileCommand re-derives the session bounce and conversion flags
type ReconcileCommand struct{}

func (c *ReconcileCommand) Name() string { return "reconcile" }
func (c *ReconcileCommand) Description() string {
	return "Re-derives session bounce and conversion flags"
}

func (c *ReconcileCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if err := requireApp(app, "reconcile sessions"); err != nil {
		return err
	}
	corrected, err := sessions.ReconcileFlags(app.DBManager.GetConnection(), slog.Default())
	if err != nil {
		return err
	}
	fmt.Printf("Session flags corrected: %d\n", corrected)
	return nil
}

// ExportLeadsCommand writes the leads of a trailing window to an xlsx file
type ExportLeadsCommand struct{}

func (c *ExportLeadsCommand) Name() string { return "export-leads" }
func (c *ExportLeadsCommand) Description() string {
	return "Exports leads to xlsx [--days N] [--out FILE]"
}

func (c *ExportLeadsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	cfg := config.GetConfig()

	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	days := fs.Int("days", cfg.ReportDefaultDays, "trailing window in days")
	out := fs.StringP("out", "o", "", "output file (defaults to leads-YYYY-MM-DD.xlsx)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireApp(app, "export leads"); err != nil {
		return err
	}

	window := timeframe.Last(timeframe.ParseDays(fmt.Sprint(*days), cfg.ReportDefaultDays, cfg.ReportMaxDays))
	items, _, err := leads.List(app.DBManager.GetConnection(), leads.ListParams{Since: window.From})
	if err != nil {
		return err
	}

	data, err := leads.ExportXLSX(items)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("leads-%s.xlsx", time.Now().UTC().Format(timeframe.DateLayout))
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("Exported %d leads from the last %d days to %s\n", len(items), window.Days, path)
	return nil
}

// APIKeyCommand prints or rotates the admin API key
type APIKeyCommand struct{}

func (c *APIKeyCommand) Name() string        { return "api-key" }
func (c *APIKeyCommand) Description() string { return "Prints the admin API key [--rotate]" }

func (c *APIKeyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	rotate := fs.Bool("rotate", false, "replace the stored key with a new one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireApp(app, "read the API key"); err != nil {
		return err
	}

	db := app.DBManager.GetConnection()
	var (
		key string
		err error
	)
	if *rotate {
		key, err = settings.GenerateAdminAPIKey(db)
	} else {
		key, err = settings.GetOrCreateAdminAPIKey(db)
	}
	if err != nil {
		return fmt.Errorf("failed to load admin API key: %w", err)
	}

	if config.GetConfig().AdminAPIKey != "" {
		log.Println("Note: LEADPULSE_ADMIN_API_KEY is set and takes precedence over the stored key")
	}
	fmt.Println(key)
	return nil
}

// SeedCommand populates the DB with demo traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string { return "seed" }
func (c *SeedCommand) Description() string {
	return "Seeds the database with demo traffic [--sessions N] [--days N]"
}

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	count := fs.Int("sessions", 500, "number of sessions to generate")
	days := fs.Int("days", 30, "spread session start times over this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireApp(app, "seed the database"); err != nil {
		return err
	}
	if config.GetConfig().IsProduction() {
		return fmt.Errorf("refusing to seed a production database")
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *count)
	se.Days = *days
	summary, err := se.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d sessions, %d events, %d conversions, %d leads\n",
		summary.Sessions, summary.Events, summary.Conversions, summary.Leads)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()

	var sessionCount, leadCount, failedCount int64
	if err := db.Model(&sessions.Session{}).Count(&sessionCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&leads.Lead{}).Count(&leadCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&leads.Lead{}).Where("webhook_status = ?", leads.WebhookError).Count(&failedCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Sessions: %d", sessionCount)
	log.Printf("- Leads: %d (%d with failed webhooks)", leadCount, failedCount)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: lpctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
