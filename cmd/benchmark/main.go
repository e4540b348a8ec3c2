package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"geoindex/pkg/index/curve"
	"geoindex/pkg/index/rtree"
	"geoindex/pkg/log"
)

var (
	benchPoints   int
	benchQueries  int
	benchWorkers  int
	benchSpan     float64
	benchSeed     int64
	benchBackend  string
	benchPath     string
	benchIndexes  []string
	benchLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Load random points into each index type and time window queries",
	Long: `Loads the same random points into a layer per index type, then runs
window queries from concurrent workers. Every answer is checked against a
brute force scan.

Examples:
  benchmark                              # all index types, in memory
  benchmark -n 200000 -q 1000 -w 8       # larger run
  benchmark --index rtree,hilbert --backend badger --path bench_data`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := log.New(benchLogLevel, false)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		results, err := runBenchmark(cmd.Context(), benchOptions{
			points:  benchPoints,
			queries: benchQueries,
			workers: benchWorkers,
			span:    benchSpan,
			seed:    benchSeed,
			backend: benchBackend,
			path:    benchPath,
			indexes: benchIndexes,
		}, logger)
		printResults(cmd.OutOrStdout(), benchPoints, benchQueries, results)
		return err
	},
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&benchPoints, "points", "n", 100000, "Number of points to load")
	f.IntVarP(&benchQueries, "queries", "q", 500, "Number of window queries")
	f.IntVarP(&benchWorkers, "workers", "w", 4, "Concurrent query workers")
	f.Float64Var(&benchSpan, "span", 5, "Maximum window width and height in degrees")
	f.Int64Var(&benchSeed, "seed", 1, "Random seed for points and windows")
	f.StringVar(&benchBackend, "backend", "memory", "Backing storage for curve indexes: memory, sqlite or badger")
	f.StringVar(&benchPath, "path", "", "Storage directory, in memory when empty")
	f.StringSliceVar(&benchIndexes, "index",
		[]string{rtree.Identifier, curve.GeohashIdentifier, curve.ZOrderIdentifier, curve.HilbertIdentifier},
		"Index types to benchmark")
	f.StringVar(&benchLogLevel, "log-level", "warn", "Log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
