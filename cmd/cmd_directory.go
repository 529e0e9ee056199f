// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/propmap/propmap/directory"
	"github.com/propmap/propmap/spatial"
	"github.com/propmap/propmap/utils/textutils"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the listing directory",
}

var directoryImportCmd = &cobra.Command{
	Use:   "import <seed.json>",
	Short: "Imports listings and owners from a seed document",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		db, repo, err := openDirectory(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := directory.ImportFile(repo, args[0], progress("Importing "+args[0]))
		if err != nil {
			return err
		}

		logger.Info().
			Int("imported", res.Imported).
			Int("skipped", res.Skipped).
			Int("owners", res.Owners).
			Msg("import finished")

		return nil
	},
}

var directoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Writes the directory as a seed document to stdout",
	RunE: func(_ *cobra.Command, _ []string) error {
		db, repo, err := openDirectory(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		return directory.Export(repo, os.Stdout)
	},
}

var listOptions directory.Filter

func printListings(listings []*directory.Listing) {
	a, b, c, d := strings.Repeat("─", 12), strings.Repeat("─", 30), strings.Repeat("─", 14), strings.Repeat("─", 22)
	fmt.Printf("╭─%s─┬─%s─┬─%s─┬─%s─╮\n", a, b, c, d)
	fmt.Printf("│ %-12s │ %-30s │ %14s │ %-22s │\n", "Id", "Title", "Price", "Location")
	fmt.Printf("├─%s─┼─%s─┼─%s─┼─%s─┤\n", a, b, c, d)

	for _, l := range listings {
		title := l.Title
		if l.IsPremium {
			title = "★ " + title
		}

		loc := l.City
		if l.Point != nil {
			loc = l.Point.String()
		}

		fmt.Printf("│ %-12.12s │ %-30.30s │ %14s │ %-22.22s │\n", l.ID, title, textutils.FormatInt(l.Price), loc)
	}

	fmt.Printf("╰─%s─┴─%s─┴─%s─┴─%s─╯\n", a, b, c, d)
}

var directoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists listings, premium first",
	RunE: func(_ *cobra.Command, _ []string) error {
		db, repo, err := openDirectory(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		listings, err := repo.List(listOptions)
		if err != nil {
			return err
		}

		printListings(listings)

		return nil
	},
}

var nearOptions struct {
	Lat, Lng float64
	Ring     int
}

var directoryNearCmd = &cobra.Command{
	Use:   "near",
	Short: "Lists listings in the H3 cells around a point",
	RunE: func(_ *cobra.Command, _ []string) error {
		p := spatial.Point{Lat: nearOptions.Lat, Lng: nearOptions.Lng}
		if !p.Valid() {
			return fmt.Errorf("invalid point %s", p)
		}

		db, repo, err := openDirectory(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		listings, err := repo.NearCell(p, nearOptions.Ring)
		if err != nil {
			return err
		}

		printListings(listings)

		return nil
	},
}

func init() {
	directoryListCmd.Flags().StringVar(&listOptions.City, "city", "", "only listings in this city")
	directoryListCmd.Flags().StringVar(&listOptions.ListingType, "type", "", "sale or rent")
	directoryListCmd.Flags().BoolVar(&listOptions.PremiumOnly, "premium", false, "only premium listings")
	directoryListCmd.Flags().StringVar(&listOptions.OwnerID, "owner", "", "only listings of this owner")
	directoryListCmd.Flags().IntVar(&listOptions.Limit, "limit", 50, "maximum rows, 0 for all")

	directoryNearCmd.Flags().Float64Var(&nearOptions.Lat, "lat", 0, "latitude")
	directoryNearCmd.Flags().Float64Var(&nearOptions.Lng, "lng", 0, "longitude")
	directoryNearCmd.Flags().IntVar(&nearOptions.Ring, "ring", 1, "H3 grid distance")
	_ = directoryNearCmd.MarkFlagRequired("lat")
	_ = directoryNearCmd.MarkFlagRequired("lng")

	directoryCmd.AddCommand(directoryImportCmd, directoryExportCmd, directoryListCmd, directoryNearCmd)
	rootCmd.AddCommand(directoryCmd)
}
