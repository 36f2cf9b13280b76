package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dygy/melody-grep/internal/cache"
	"github.com/dygy/melody-grep/internal/melody"
)

var melodyCmd = &cobra.Command{
	Use:   "melody",
	Short: "Inspect and manage cached melodies",
	Long: `List, show or delete melodies stored in the cache.

Subcommands:
  list      List cached melodies
  show      Print a cached melody
  delete    Remove a cached melody`,
}

var melodyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached melodies",
	Args:  cobra.NoArgs,
	RunE:  runMelodyList,
}

var melodyShowCmd = &cobra.Command{
	Use:   "show <song-code>",
	Short: "Print a cached melody",
	Args:  cobra.ExactArgs(1),
	RunE:  runMelodyShow,
}

var melodyDeleteCmd = &cobra.Command{
	Use:   "delete <song-code>",
	Short: "Remove a cached melody",
	Args:  cobra.ExactArgs(1),
	RunE:  runMelodyDelete,
}

var (
	// melody show flags
	showNotes bool
)

func init() {
	melodyCmd.AddCommand(melodyListCmd)
	melodyCmd.AddCommand(melodyShowCmd)
	melodyCmd.AddCommand(melodyDeleteCmd)

	melodyShowCmd.Flags().BoolVar(&showNotes, "table", false, "Print notes as a table instead of JSON")
}

func openCache(cmd *cobra.Command) (*cache.MelodyCache, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.Paths.CacheDir)
}

func runMelodyList(cmd *cobra.Command, args []string) error {
	melodies, err := openCache(cmd)
	if err != nil {
		return err
	}

	entries, err := melodies.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No cached melodies.")
		return nil
	}

	fmt.Println(renderTable(
		[]string{"Song", "Title", "Notes", "Duration", "Size", "Processed"},
		melodyRows(entries, time.Now()),
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))

	total, count, err := melodies.Size()
	if err == nil {
		fmt.Printf("%d melodies, %s in %s\n", count, humanize.Bytes(uint64(total)), melodies.Dir())
	}
	return nil
}

func melodyRows(entries []cache.Entry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		title := e.SongTitle
		if title == "" {
			title = "-"
		}
		rows = append(rows, []string{
			e.SongCode,
			title,
			strconv.Itoa(e.TotalNotes),
			formatSeconds(e.Duration),
			humanize.Bytes(uint64(e.Size)),
			humanize.RelTime(e.ProcessedAt, now, "ago", "from now"),
		})
	}
	return rows
}

func noteRows(record *melody.Record) [][]string {
	rows := make([][]string, 0, len(record.Notes))
	for _, n := range record.Notes {
		rows = append(rows, []string{
			strconv.FormatFloat(n.Start, 'f', 3, 64),
			strconv.FormatFloat(n.End, 'f', 3, 64),
			n.Note,
			strconv.FormatFloat(n.Frequency, 'f', 1, 64),
			strconv.FormatFloat(n.Confidence, 'f', 2, 64),
		})
	}
	return rows
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func runMelodyShow(cmd *cobra.Command, args []string) error {
	melodies, err := openCache(cmd)
	if err != nil {
		return err
	}

	record, err := melodies.Get(args[0])
	if err != nil {
		return err
	}

	if showNotes {
		fmt.Println(renderTable(
			[]string{"Start", "End", "Note", "Hz", "Conf"},
			noteRows(record),
			[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight},
		))
		fmt.Printf("%s: %d notes over %s\n", record.SongCode, record.TotalNotes, formatSeconds(record.Duration))
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

func runMelodyDelete(cmd *cobra.Command, args []string) error {
	melodies, err := openCache(cmd)
	if err != nil {
		return err
	}
	if err := melodies.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
