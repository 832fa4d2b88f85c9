// marks-thresholds inspects and refreshes the cached Marks of Excellence
// damage thresholds the tracker resolves targets from.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gunmark-data/marks.report/internal/wg"
)

func printThresholds(m wg.MoeThresholds) {
	state := "fresh"
	if m.Stale(time.Now()) {
		state = "stale"
	}
	fetched := time.Unix(int64(m.FetchedAt), 0).Format("2006-01-02 15:04")
	fmt.Printf("tank %-6d %-24s 65%%=%-6.0f 85%%=%-6.0f 95%%=%-6.0f fetched %s (%s)\n",
		m.TankID, m.TankName, m.Mark65, m.Mark85, m.Mark95, fetched, state)
}

func main() {
	cacheDir := flag.String("cache", "cache", "Threshold cache directory")
	tankID := flag.Int("tank", 0, "Tank id to look up")
	tankName := flag.String("name", "", "Tank name, used when fetching or setting")
	refresh := flag.Bool("refresh", false, "Fetch from the community source when not freshly cached")
	set := flag.Float64("set", 0, "Manually set the 95% target damage for -tank")
	flag.Parse()

	provider := wg.NewThresholdProvider(*cacheDir, nil, nil, nil)

	if *set > 0 {
		if *tankID == 0 {
			fmt.Fprintln(os.Stderr, "-set requires -tank")
			os.Exit(1)
		}
		printThresholds(provider.SetManual(*tankID, *tankName, *set))
		return
	}

	if *tankID != 0 {
		if *refresh {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			m, ok := provider.Get(ctx, *tankID, *tankName)
			if !ok {
				fmt.Fprintf(os.Stderr, "no thresholds found for tank %d\n", *tankID)
				os.Exit(1)
			}
			printThresholds(m)
			return
		}
		m, ok := provider.Cached(*tankID)
		if !ok {
			fmt.Fprintf(os.Stderr, "tank %d not freshly cached, use -refresh to fetch\n", *tankID)
			os.Exit(1)
		}
		printThresholds(m)
		return
	}

	all := provider.All()
	if len(all) == 0 {
		fmt.Println("threshold cache is empty")
		return
	}
	for _, m := range all {
		printThresholds(m)
	}
}
