// Reelsync - Letterboxd to Trakt Watch Activity Sync
// Copyright 2026 Reelsync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelsync/reelsync

// Package main is the entry point for the reelsync command.
//
// Reelsync mirrors a Letterboxd member's public diary onto a Trakt
// account. Each invocation performs one sync pass:
//
//  1. Configuration: load settings from a YAML file and environment
//     variables (Koanf v2), environment winning.
//  2. Feed: fetch and parse the member's public RSS diary feed.
//  3. Normalize: extract film title, release year, watch date, and
//     star rating from each entry; drop entries before the cutoff.
//  4. Submit: add the records to Trakt watch history, then submit the
//     rated subset to Trakt ratings.
//
// # Configuration
//
// Settings come from reelsync.yaml (or the file named by
// REELSYNC_CONFIG) with environment-variable overrides:
//
//	export LETTERBOXD_USERNAME=someone
//	export TRAKT_CLIENT_ID=...
//	export TRAKT_CLIENT_SECRET=...
//	reelsync
//
// # Cutoff flags
//
// By default every feed entry is synced. The window can be bounded
// from the command line:
//
//	reelsync -s 01-15-2024   # entries watched on or after Jan 15 2024
//	reelsync -d 7            # entries watched in the last 7 days
//
// The two flags are mutually exclusive. A sync.days_back setting in
// the config file applies when no flag is given; with an explicit
// start date the later of the two bounds wins.
//
// # Authorization
//
// Trakt access uses an OAuth token stored next to the config file.
// The first run needs a one-time device authorization:
//
//	reelsync --authorize
//
// which prints the Trakt authorize URL, reads the resulting code, and
// writes the token file. Subsequent runs refresh the token
// automatically.
//
// # Exit codes
//
// 0 on a completed pass (including one with nothing to sync or with
// per-chunk delivery failures, which are reported in the log), 1 on a
// fatal error, 2 on invalid flags or configuration.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/reelsync/reelsync/internal/config"
	"github.com/reelsync/reelsync/internal/feed"
	"github.com/reelsync/reelsync/internal/logging"
	"github.com/reelsync/reelsync/internal/models"
	"github.com/reelsync/reelsync/internal/sync"
	"github.com/reelsync/reelsync/internal/trakt"
)

const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("reelsync", flag.ContinueOnError)
	var (
		startDate string
		days      int
		authorize bool
	)
	flags.StringVar(&startDate, "s", "", "sync entries watched on or after this date (MM-DD-YYYY)")
	flags.StringVar(&startDate, "start-date", "", "sync entries watched on or after this date (MM-DD-YYYY)")
	flags.IntVar(&days, "d", 0, "sync entries watched in the last N days")
	flags.IntVar(&days, "days", 0, "sync entries watched in the last N days")
	flags.BoolVar(&authorize, "authorize", false, "perform the one-time Trakt authorization and exit")
	if err := flags.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return exitConfig
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	cutoff, err := feed.NewCutoff(startDate, days, cfg.Sync.DaysBack)
	if err != nil {
		logging.Error().Err(err).Msg("Invalid cutoff flags")
		fmt.Fprintln(os.Stderr, "reelsync:", err)
		return exitConfig
	}

	client := trakt.NewClient(cfg.Trakt, cfg.Sync)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if authorize {
		if err := runAuthorize(ctx, client); err != nil {
			logging.Error().Err(err).Msg("Authorization failed")
			return exitFatal
		}
		return exitOK
	}

	runner := sync.NewRunner(feed.NewReader(nil), client, cfg.Letterboxd.FeedAddress(), cutoff)
	report, err := runner.Run(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Sync run failed")
		return exitFatal
	}

	printReport(report)
	return exitOK
}

// runAuthorize walks the user through the one-time code exchange.
func runAuthorize(ctx context.Context, client *trakt.Client) error {
	fmt.Println("Open this URL, approve access, and paste the code below:")
	fmt.Println()
	fmt.Println("  " + client.AuthorizeURL())
	fmt.Println()
	fmt.Print("Code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("no authorization code entered")
	}

	if err := client.Authorize(ctx, code); err != nil {
		return err
	}
	fmt.Println("Authorization complete. Token saved.")
	return nil
}

// printReport writes a human-readable summary to stdout; the log
// carries the structured detail.
func printReport(report *models.RunReport) {
	if report.NothingToSync {
		fmt.Printf("Nothing to sync (%d feed entries, none in window).\n", report.FeedEntries)
		return
	}

	fmt.Printf("Synced %d of %d feed entries.\n", report.Records, report.FeedEntries)
	if report.History != nil {
		fmt.Printf("  history: %d added, %d already present\n", report.History.Added, report.History.Existing)
	}
	if report.Ratings != nil {
		fmt.Printf("  ratings: %d added, %d already present\n", report.Ratings.Added, report.Ratings.Existing)
	}

	for _, result := range []*models.SyncResult{report.History, report.Ratings} {
		if result == nil {
			continue
		}
		for _, title := range result.NotFoundTitles {
			fmt.Printf("  not matched: %s\n", title)
		}
	}
	if report.HasFailures() {
		fmt.Println("Some chunks were not delivered; see log for details.")
	}
}
