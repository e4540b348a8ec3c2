package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"geoindex/pkg/client"
)

const Prompt = "geo> "

var serverAddr string

var rootCmd = &cobra.Command{
	Use:          "cli",
	Short:        "Interactive shell for a geoindex server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "geoindex CLI (Target: %s)\n", serverAddr)
		repl(cmd.Context(), client.New(serverAddr), cmd.InOrStdin(), cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&serverAddr, "addr", "localhost:8080", "geoindex HTTP server address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func repl(ctx context.Context, cli *client.Client, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "Type 'help' for commands.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, Prompt)
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch cmd := strings.ToLower(parts[0]); cmd {
		case "layers", "ls":
			handleLayers(ctx, cli, out)
		case "add", "put":
			handleAdd(ctx, cli, out, parts)
		case "del", "rm":
			handleDel(ctx, cli, out, parts)
		case "search", "window":
			handleSearch(ctx, cli, out, parts)
		case "near":
			handleNear(ctx, cli, out, parts)
		case "stats":
			handleStats(ctx, cli, out, parts)
		case "help":
			printHelp(out)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintf(out, "Unknown command: '%s'. Type 'help'.\n", cmd)
		}
	}
}

func handleLayers(ctx context.Context, cli *client.Client, out io.Writer) {
	infos, err := cli.Layers(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	for _, l := range infos {
		fmt.Fprintf(out, "  %-12s %-8s %-8s %d record(s)\n", l.Name, l.Index, l.CRS, l.Count)
	}
}

func handleAdd(ctx context.Context, cli *client.Client, out io.Writer, parts []string) {
	if len(parts) < 4 {
		fmt.Fprintln(out, "Usage: add <layer> <x> <y> [name]")
		return
	}
	x, errX := cast.ToFloat64E(parts[2])
	y, errY := cast.ToFloat64E(parts[3])
	if errX != nil || errY != nil {
		fmt.Fprintln(out, "Error: x and y must be numbers")
		return
	}
	var props map[string]any
	if len(parts) > 4 {
		props = map[string]any{"name": strings.Join(parts[4:], " ")}
	}

	start := time.Now()
	id, err := cli.Add(ctx, parts[1], orb.Point{x, y}, props)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "OK id=%d (%v)\n", id, time.Since(start))
}

func handleDel(ctx context.Context, cli *client.Client, out io.Writer, parts []string) {
	if len(parts) < 3 {
		fmt.Fprintln(out, "Usage: del <layer> <id> [keep]")
		return
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		fmt.Fprintln(out, "Error: id must be an integer")
		return
	}
	keep := len(parts) > 3 && parts[3] == "keep"

	start := time.Now()
	if err := cli.Remove(ctx, parts[1], id, !keep); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Deleted (%v)\n", time.Since(start))
}

func handleSearch(ctx context.Context, cli *client.Client, out io.Writer, parts []string) {
	if len(parts) < 6 {
		fmt.Fprintln(out, "Usage: search <layer> <minX> <minY> <maxX> <maxY> [exact]")
		return
	}
	v, err := floats(parts[2:6])
	if err != nil {
		fmt.Fprintln(out, "Error: window coordinates must be numbers")
		return
	}
	exact := len(parts) > 6 && parts[6] == "exact"

	start := time.Now()
	fc, err := cli.Search(ctx, parts[1], orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, exact)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	printFeatures(out, fc, time.Since(start))
}

func handleNear(ctx context.Context, cli *client.Client, out io.Writer, parts []string) {
	if len(parts) < 5 {
		fmt.Fprintln(out, "Usage: near <layer> <x> <y> <distance>")
		return
	}
	v, err := floats(parts[2:5])
	if err != nil {
		fmt.Fprintln(out, "Error: x, y and distance must be numbers")
		return
	}

	start := time.Now()
	fc, err := cli.Near(ctx, parts[1], orb.Point{v[0], v[1]}, v[2])
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	printFeatures(out, fc, time.Since(start))
}

func handleStats(ctx context.Context, cli *client.Client, out io.Writer, parts []string) {
	if len(parts) < 2 {
		fmt.Fprintln(out, "Usage: stats <layer>")
		return
	}
	stats, err := cli.Stats(ctx, parts[1])
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	for _, k := range []string{"reads", "writes", "hits", "misses", "hit_ratio", "height", "splits", "rebuilds"} {
		if v, ok := stats[k]; ok {
			fmt.Fprintf(out, "  %-10s %v\n", k, v)
		}
	}
}

func floats(parts []string) ([]float64, error) {
	v := make([]float64, len(parts))
	for i, p := range parts {
		f, err := cast.ToFloat64E(p)
		if err != nil {
			return nil, err
		}
		v[i] = f
	}
	return v, nil
}

func printFeatures(out io.Writer, fc *geojson.FeatureCollection, took time.Duration) {
	fmt.Fprintf(out, "Found %d feature(s) (%v):\n", len(fc.Features), took)
	for i, f := range fc.Features {
		if i >= 20 {
			fmt.Fprintf(out, "... and %d more\n", len(fc.Features)-20)
			break
		}
		fmt.Fprintf(out, "  [%v] %s %v", f.ID, f.Geometry.GeoJSONType(), f.Geometry.Bound().Center())
		if name := f.Properties.MustString("name", ""); name != "" {
			fmt.Fprintf(out, " %q", name)
		}
		fmt.Fprintln(out)
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Commands:
  layers                                      List layers
  add <layer> <x> <y> [name]                  Add a point
  del <layer> <id> [keep]                     Remove a record (keep leaves it in the store)
  search <layer> <minX> <minY> <maxX> <maxY> [exact]
                                              Window query
  near <layer> <x> <y> <distance>             Distance query
  stats <layer>                               Index statistics
  exit                                        Exit CLI
	`)
}
