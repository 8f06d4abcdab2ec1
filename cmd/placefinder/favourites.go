package main

import (
	"encoding/json"
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
	favUser string
	favOut  string
)

var favouritesCmd = &cobra.Command{
	Use:   "favourites",
	Short: "Inspect stored favourites",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if favUser == "" {
			return errors.New("--user is required")
		}
		return nil
	},
}

// favouritesListCmd prints an identity's favourites
var favouritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favourites for an identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		markers, err := loadFavourites(cmd)
		if err != nil {
			return err
		}
		if len(markers) == 0 {
			color.New(color.Faint).Fprintln(os.Stdout, "No favourites")
			return nil
		}
		for _, m := range markers {
			color.New(color.FgYellow).Fprintf(os.Stdout, "%s  ", geo.KeyOf(m.Position))
			fmt.Fprintln(os.Stdout, m.Name)
		}
		return nil
	},
}

// favouritesExportCmd writes an identity's favourites as GeoJSON
var favouritesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export favourites as a GeoJSON FeatureCollection",
	RunE: func(cmd *cobra.Command, args []string) error {
		markers, err := loadFavourites(cmd)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if favOut != "" && favOut != "-" {
			f, err := os.Create(favOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(geo.FeatureCollection(markers))
	},
}

func loadFavourites(cmd *cobra.Command) ([]core.Marker, error) {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return nil, err
	}
	defer a.Close()

	entries, err := a.store.Get(cmd.Context(), &core.Identity{Subject: favUser})
	if err != nil {
		return nil, err
	}
	markers := make([]core.Marker, len(entries))
	for i, e := range entries {
		markers[i] = e.Marker
	}
	return markers, nil
}

func init() {
	favouritesCmd.PersistentFlags().StringVar(&favUser, "user", "", "identity key (subject, or display name when no subject)")
	favouritesExportCmd.Flags().StringVarP(&favOut, "out", "o", "-", "output file, - for stdout")
	favouritesCmd.AddCommand(favouritesListCmd, favouritesExportCmd)
	rootCmd.AddCommand(favouritesCmd)
}
