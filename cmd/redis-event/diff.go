package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// DatabaseStats represents the INFO keyspace line of one database
type DatabaseStats struct {
	Keys    int64
	Expires int64
	AvgTTL  int64 // in milliseconds, 0 if not present
}

// KeyspaceInfo maps database numbers to their stats
type KeyspaceInfo map[int]DatabaseStats

var dbRegex = regexp.MustCompile(`db(\d+):keys=(\d+),expires=(\d+)(?:,avg_ttl=(\d+))?`)

func diffCmd() *cobra.Command {
	var refAddr, sutAddr, password string
	var dbs []int

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare INFO keyspace of a master and a forwarding target",
		Example: `  redis-event diff --ref localhost:6379 --sut localhost:6380 --db 0,1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			ref, err := fetchKeyspace(ctx, refAddr, password)
			if err != nil {
				return fmt.Errorf("reference %s: %w", refAddr, err)
			}
			sut, err := fetchKeyspace(ctx, sutAddr, password)
			if err != nil {
				return fmt.Errorf("target %s: %w", sutAddr, err)
			}

			var filter map[int]bool
			if len(dbs) > 0 {
				filter = make(map[int]bool, len(dbs))
				for _, db := range dbs {
					filter[db] = true
				}
			}
			if n := compareKeyspaceInfo(cmd.OutOrStdout(), ref, sut, filter); n > 0 {
				return fmt.Errorf("%d critical differences found", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refAddr, "ref", "localhost:6379", "reference Redis (host:port)")
	cmd.Flags().StringVar(&sutAddr, "sut", "", "Redis under test (host:port)")
	cmd.Flags().StringVar(&password, "password", "", "password for both endpoints")
	cmd.Flags().IntSliceVar(&dbs, "db", nil, "databases to compare")
	cmd.MarkFlagRequired("sut")
	return cmd
}

func fetchKeyspace(ctx context.Context, addr, password string) (KeyspaceInfo, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	defer client.Close()

	info, err := client.Info(ctx, "keyspace").Result()
	if err != nil {
		return nil, err
	}
	return parseKeyspaceInfo(info), nil
}

// parseKeyspaceInfo extracts lines like db0:keys=2,expires=0,avg_ttl=0
func parseKeyspaceInfo(infoResponse string) KeyspaceInfo {
	keyspace := make(KeyspaceInfo)
	for _, line := range strings.Split(infoResponse, "\n") {
		matches := dbRegex.FindStringSubmatch(strings.TrimSpace(line))
		if matches == nil {
			continue
		}
		dbNum, _ := strconv.Atoi(matches[1])
		keys, _ := strconv.ParseInt(matches[2], 10, 64)
		expires, _ := strconv.ParseInt(matches[3], 10, 64)

		var avgTTL int64
		if matches[4] != "" {
			avgTTL, _ = strconv.ParseInt(matches[4], 10, 64)
		}
		keyspace[dbNum] = DatabaseStats{Keys: keys, Expires: expires, AvgTTL: avgTTL}
	}
	return keyspace
}

// compareKeyspaceInfo prints the comparison and returns the number of
// critical differences. AvgTTL drift is reported but not counted.
func compareKeyspaceInfo(w io.Writer, ref, sut KeyspaceInfo, dbFilter map[int]bool) int {
	allDBs := make(map[int]bool)
	for db := range ref {
		if dbFilter == nil || dbFilter[db] {
			allDBs[db] = true
		}
	}
	for db := range sut {
		if dbFilter == nil || dbFilter[db] {
			allDBs[db] = true
		}
	}
	dbNums := make([]int, 0, len(allDBs))
	for db := range allDBs {
		dbNums = append(dbNums, db)
	}
	sort.Ints(dbNums)

	bad := color.New(color.FgRed).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	good := color.New(color.FgGreen).SprintFunc()

	differences := 0
	for _, dbNum := range dbNums {
		refStats, refExists := ref[dbNum]
		sutStats, sutExists := sut[dbNum]
		fmt.Fprintf(w, "db%d:\n", dbNum)

		switch {
		case !refExists:
			fmt.Fprintf(w, "  %s only in target: keys=%d,expires=%d\n", bad("MISSING"), sutStats.Keys, sutStats.Expires)
			differences++
		case !sutExists:
			fmt.Fprintf(w, "  %s only in reference: keys=%d,expires=%d\n", bad("MISSING"), refStats.Keys, refStats.Expires)
			differences++
		default:
			if refStats.Keys != sutStats.Keys {
				fmt.Fprintf(w, "  %s keys: ref=%d target=%d\n", bad("DIFF"), refStats.Keys, sutStats.Keys)
				differences++
			}
			if refStats.Expires != sutStats.Expires {
				fmt.Fprintf(w, "  %s expires: ref=%d target=%d\n", bad("DIFF"), refStats.Expires, sutStats.Expires)
				differences++
			}
			if refStats.AvgTTL != sutStats.AvgTTL {
				fmt.Fprintf(w, "  %s avg_ttl: ref=%d target=%d\n", warn("DRIFT"), refStats.AvgTTL, sutStats.AvgTTL)
			}
			if refStats.Keys == sutStats.Keys && refStats.Expires == sutStats.Expires {
				fmt.Fprintf(w, "  %s keys=%d,expires=%d\n", good("OK"), refStats.Keys, refStats.Expires)
			}
		}
	}
	return differences
}
