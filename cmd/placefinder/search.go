package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	searchNear string
	searchAs   string
)

// searchCmd geocodes a location once, searches around it and prints the result
var searchCmd = &cobra.Command{
	Use:   "search --near <location>",
	Short: "Search places near a location and print them",
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchNear == "" {
			return errors.New("--near is required")
		}
		ctx := cmd.Context()

		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if searchAs != "" {
			if _, err := a.session.SignIn(ctx, core.Identity{Subject: searchAs}); err != nil {
				return err
			}
		}

		// "lat,lng" skips the geocoder
		if center, err := geo.LatLngFromString(searchNear); err == nil {
			a.reconciler.SetSearchCenter(center)
		} else if _, err := a.reconciler.GeocodeAndAppend(ctx, searchNear); err != nil {
			return fmt.Errorf("geocode %q: %w", searchNear, err)
		}
		markers, err := a.reconciler.RunPendingSearch(ctx)
		if err != nil {
			return fmt.Errorf("search near %q: %w", searchNear, err)
		}
		center := a.reconciler.SearchState().Center
		printMarkers(os.Stdout, center, markers)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchNear, "near", "", "free-text location or \"lat,lng\" to search around")
	searchCmd.Flags().StringVar(&searchAs, "as", "", "identity key whose favourites are highlighted")
	rootCmd.AddCommand(searchCmd)
}

// printMarkers writes one line per marker. Favourites are highlighted.
func printMarkers(w io.Writer, center core.LatLng, markers []core.Marker) {
	fav := color.New(color.FgYellow, color.Bold)
	dim := color.New(color.Faint)

	if len(markers) == 0 {
		dim.Fprintln(w, "No places found")
		return
	}
	for _, m := range markers {
		line := fmt.Sprintf("%-20s %-40s %8.0fm  %s", m.ID, m.Name, geo.Distance(center, m.Position), m.Address)
		if m.IsFavourite {
			fav.Fprintln(w, "★ "+line)
		} else {
			fmt.Fprintln(w, "  "+line)
		}
	}
}
