// Package main provides read-only tooling for the location mapping file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"hacktown/internal/formatter"
	"hacktown/internal/locations"
)

func main() {
	file := flag.String("file", "configs/locations_config.json", "Location mapping JSON file")
	list := flag.Bool("list", false, "List every mapped location")
	validate := flag.Bool("validate", false, "Check the mapping for aliases claimed by more than one location")
	show := flag.String("show", "", "Show the location with this id")
	resolve := flag.String("resolve", "", "Show which location a raw venue name resolves to")
	showUsage := flag.Bool("help", false, "Show usage information")

	flag.Parse()

	if *showUsage || (!*list && !*validate && *show == "" && *resolve == "") {
		printUsage()
		os.Exit(0)
	}

	fmt.Printf("📂 Mapping file: %s\n", *file)

	mapping, err := locations.Load(*file)
	if err != nil {
		log.Fatalf("❌ Failed to load mapping: %v\n", err)
	}

	fmt.Printf("✅ Loaded %s\n\n", mapping)

	if *list {
		printEntries(mapping)
	}

	if *show != "" && !showEntry(mapping, *show) {
		os.Exit(1)
	}

	if *resolve != "" {
		printResolution(locations.NewMatcher(mapping), *resolve)
	}

	if *validate && !validateMapping(mapping) {
		os.Exit(1)
	}
}

func printEntries(m *locations.Mapping) {
	rows := make([][]string, 0, len(m.Entries))

	for _, e := range m.Entries {
		gmaps := "-"
		if e.GMaps != "" {
			gmaps = "✓"
		}

		rows = append(rows, []string{e.ID, e.FilterLocation, e.NearLocation, gmaps, strings.Join(e.PossibleNames, ", ")})
	}

	fmt.Println(formatter.RenderTable([]string{"ID", "Filter location", "Near", "Map", "Aliases"}, rows))
	fmt.Println()
}

func showEntry(m *locations.Mapping, id string) bool {
	e, ok := m.Lookup(id)
	if !ok {
		fmt.Printf("❌ No location with id %q\n", id)

		return false
	}

	gmaps := e.GMaps
	if gmaps == "" {
		gmaps = "(none)"
	}

	fmt.Printf("📍 %s\n", e.ID)
	fmt.Printf("  Filter location: %s\n", e.FilterLocation)
	fmt.Printf("  Near location:   %s\n", e.NearLocation)
	fmt.Printf("  Google Maps:     %s\n", gmaps)
	fmt.Printf("  Possible names:  %s\n\n", strings.Join(e.PossibleNames, ", "))

	return true
}

func printResolution(matcher *locations.Matcher, raw string) {
	res := matcher.Resolve(raw)
	if res.Unmapped {
		fmt.Printf("⚠️  %q is not mapped\n\n", raw)

		return
	}

	fmt.Printf("📍 %q → %s (%s, near %s)\n\n", raw, res.Entry.FilterLocation, res.Entry.ID, res.Entry.NearLocation)
}

func validateMapping(m *locations.Mapping) bool {
	fmt.Println("🔍 Checking aliases...")

	dups := m.DuplicateAliases()
	if len(dups) == 0 {
		fmt.Printf("✅ %d aliases, no conflicts\n", locations.NewMatcher(m).Aliases())

		return true
	}

	rows := make([][]string, 0, len(dups))
	for _, d := range dups {
		rows = append(rows, []string{d.Alias, d.Winner, d.Loser})
	}

	fmt.Printf("❌ %d conflicting aliases:\n", len(dups))
	fmt.Println(formatter.RenderTable([]string{"Alias", "Used by", "Shadowed"}, rows))

	return false
}

func printUsage() {
	fmt.Println("Usage: ./bin/locations [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ./bin/locations -list")
	fmt.Println("  ./bin/locations -validate -file configs/locations_config.json")
	fmt.Println("  ./bin/locations -show ete")
	fmt.Println("  ./bin/locations -resolve \"Praça Santa Rita\"")
}
