// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/propmap/propmap/mapview"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [records.json]",
	Short: "Shows where each listing record would be placed on the map",
	Long: `Reads a JSON array of listing records, from the file given or stdin, and
prints the map position of every entity. Entities without coordinates are
placed around their city center, or the default center.

$ echo '[{"id": 12, "city": "Oran"}]' | propmap resolve
12	35.6969,-0.6331	city:Oran
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin

		if len(args) == 1 {
			f, err := os.Open(args[0]) // #nosec G304 - path is provided by the user
			if err != nil {
				return err
			}
			defer f.Close()

			in = f
		} else if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "Paste a JSON array of listings, then Ctrl-D…")
		}

		dec := json.NewDecoder(in)
		dec.UseNumber()

		var raws []map[string]any
		if err := dec.Decode(&raws); err != nil {
			return fmt.Errorf("decoding records: %w", err)
		}

		entities, skipped := mapview.NormalizeRecords(raws)
		for _, i := range skipped {
			fmt.Printf("#%d\t%q\n", i, mapview.ErrMissingID.Error())
		}

		resolver := mapview.NewResolver(cfg.Map.BoundingRegion, cfg.Map.DefaultCenter, cfg.Map.Jitter)

		for _, e := range entities {
			p, ok := resolver.Resolve(e)
			if !ok {
				fmt.Printf("%s\t%q\n", e.ID, "unresolvable")

				continue
			}

			source := "explicit"

			if e.Coordinate == nil {
				source = "default"
				if _, known := mapview.CityCenter(e.City); known {
					source = "city:" + e.City
				}
			}

			fmt.Printf("%s\t%.4f,%.4f\t%s\n", e.ID, p.Lat, p.Lng, source)
		}

		return nil
	},
}

var geocodeOptions struct {
	City string
}

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Looks an address up with the configured geocoder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		g := newGeocoder(ctx)
		if g == nil {
			return fmt.Errorf("no geocoding key: set GOOGLE_MAPS_API_KEY or geocoder.api_key")
		}

		res, err := g.Geocode(ctx, strings.Join(args, " "), geocodeOptions.City)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(out))

		return nil
	},
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeOptions.City, "city", "", "city used to disambiguate the address")
	rootCmd.AddCommand(resolveCmd, geocodeCmd)
}
