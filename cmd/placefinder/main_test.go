package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := []string{"serve", "search", "favourites", "token"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if assert.NoError(t, err, name) {
			assert.Equal(t, name, cmd.Name())
		}
	}

	export, _, err := rootCmd.Find([]string{"favourites", "export"})
	assert.NoError(t, err)
	assert.Equal(t, "export", export.Name())
}

func TestPrintMarkers(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	center := core.LatLng{Lat: 51.9194, Lng: 19.1451}
	var buf bytes.Buffer
	printMarkers(&buf, center, []core.Marker{
		{ID: "a", Name: "Church A", Position: center, Address: "Main St", IsFavourite: true},
		{ID: "b", Name: "Church B", Position: core.LatLng{Lat: 51.9200, Lng: 19.1451}},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if assert.Len(t, lines, 2) {
		assert.True(t, strings.HasPrefix(lines[0], "★ a"), lines[0])
		assert.Contains(t, lines[0], "Main St")
		assert.True(t, strings.HasPrefix(lines[1], "  b"), lines[1])
	}
}

func TestPrintMarkers_Empty(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	printMarkers(&buf, core.LatLng{}, nil)

	assert.Equal(t, "No places found\n", buf.String())
}
