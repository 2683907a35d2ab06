package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/rendererurl"
)

var urlLocked bool

// urlCmd prints a standalone renderer URL
var urlCmd = &cobra.Command{
	Use:   "url [fixture]",
	Short: "Print the renderer URL of a fixture",
	Long: `Prints the URL that opens a fixture in a standalone renderer, using
renderer_url and mode from the config. The fixture is "path" or
"path#name"; without one the renderer's index URL is printed.

Example:
  fixtureplay url src/card.fixture.tsx#dark --locked`,
	Args: cobra.MaximumNArgs(1),
	RunE: runURL,
}

func init() {
	urlCmd.Flags().BoolVar(&urlLocked, "locked", false, "Lock the renderer to the fixture")
}

func runURL(cmd *cobra.Command, args []string) error {
	base := rendererurl.Pick(cfg.RendererURL, cfg.Mode)
	if base == "" {
		return errors.New("no renderer URL configured for mode " + string(cfg.Mode))
	}

	var id *fixture.ID
	if len(args) == 1 {
		parsed := fixture.ParseID(args[0])
		id = &parsed
	}

	fmt.Fprintln(cmd.OutOrStdout(), rendererurl.Create(base, id, urlLocked))
	return nil
}
