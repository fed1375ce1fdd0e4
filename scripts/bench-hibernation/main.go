// bench-hibernation measures heap memory before and after Hibernate() calls
// while a forest is filled in rounds.
//
// Usage:
//
//	go run ./scripts/bench-hibernation --trees 64 --shards 8 --keys 200000 --rounds 4 \
//	  --profile-dir docs/profiles/hibernation
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/rbforest/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbforest/pkg/safeconv"
)

type heapSnapshot struct {
	label     string
	heapInUse uint64
	heapSys   uint64
	heapIdle  uint64
	numGC     uint32
}

func main() {
	trees := flag.Int("trees", 64, "Number of trees")
	shards := flag.Int("shards", 8, "Number of arenas")
	keys := flag.Int("keys", 200_000, "Keys inserted per round")
	rounds := flag.Int("rounds", 4, "Number of fill/hibernate/boot rounds")
	seed := flag.Uint64("seed", 1, "Random seed")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")

	flag.Parse()

	if *trees <= 0 || *keys <= 0 || *rounds <= 0 {
		log.Fatal("--trees, --keys and --rounds must be positive")
	}

	if *profileDir != "" {
		if err := os.MkdirAll(*profileDir, 0o755); err != nil {
			log.Fatalf("mkdir profile-dir: %v", err)
		}
	}

	if *cpuProfile {
		if *profileDir == "" {
			log.Fatal("--cpu-profile requires --profile-dir")
		}

		cpuPath := filepath.Join(*profileDir, "cpu.prof")

		cpuFile, cpuErr := os.Create(cpuPath)
		if cpuErr != nil {
			log.Fatalf("create cpu profile: %v", cpuErr)
		}
		defer cpuFile.Close()

		if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
			log.Fatalf("start cpu profile: %v", startErr)
		}

		defer pprof.StopCPUProfile()

		log.Printf("CPU profiling enabled -> %s", cpuPath)
	}

	forest := rbtree.NewForest[int64, int64](*shards)
	names := make([]string, *trees)

	for idx := range names {
		names[idx] = fmt.Sprintf("tree-%03d", idx)
	}

	rng := rand.New(rand.NewPCG(*seed, 0)) //nolint:gosec // reproducible workload, not crypto.
	codec := rbtree.Int64Codec{}

	var snapshots []heapSnapshot

	takeSnapshot := func(label string) {
		runtime.GC()
		runtime.GC()

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		snapshots = append(snapshots, heapSnapshot{
			label:     label,
			heapInUse: m.HeapInuse,
			heapSys:   m.HeapSys,
			heapIdle:  m.HeapIdle,
			numGC:     m.NumGC,
		})
		log.Printf("  [heap] %-32s inuse=%9s  sys=%9s  idle=%9s",
			label, humanize.Bytes(m.HeapInuse), humanize.Bytes(m.HeapSys), humanize.Bytes(m.HeapIdle))
	}

	writeHeapProfile := func(name string) {
		if *profileDir == "" {
			return
		}

		runtime.GC()

		path := filepath.Join(*profileDir, name)

		f, ferr := os.Create(path)
		if ferr != nil {
			log.Printf("warning: create heap profile %s: %v", path, ferr)

			return
		}
		defer f.Close()

		if perr := pprof.WriteHeapProfile(f); perr != nil {
			log.Printf("warning: write heap profile %s: %v", path, perr)
		}
	}

	takeSnapshot("before_fill")

	for round := 1; round <= *rounds; round++ {
		log.Printf("round %d/%d: inserting %s keys", round, *rounds, humanize.Comma(int64(*keys)))

		for idx := range *keys {
			guard := forest.Tree(names[idx%len(names)]).Allocate()
			guard.Insert(rng.Int64(), int64(idx))
			guard.Release()
		}

		takeSnapshot(fmt.Sprintf("round_%d_before_hibernate", round))
		writeHeapProfile(fmt.Sprintf("heap_round_%d_before_hibernate.prof", round))

		if err := forest.Hibernate(codec, codec); err != nil {
			log.Fatalf("hibernate: %v", err)
		}

		log.Printf("  hibernated %s into %s",
			humanize.Bytes(safeconv.MustIntToUint64(forest.HibernatedRawSize())),
			humanize.Bytes(safeconv.MustIntToUint64(forest.HibernatedSize())))

		takeSnapshot(fmt.Sprintf("round_%d_after_hibernate", round))
		writeHeapProfile(fmt.Sprintf("heap_round_%d_after_hibernate.prof", round))

		if err := forest.Boot(codec, codec); err != nil {
			log.Fatalf("boot: %v", err)
		}

		takeSnapshot(fmt.Sprintf("round_%d_after_boot", round))
	}

	for _, name := range names {
		tree, _ := forest.Lookup(name)

		guard := tree.Read()
		err := guard.Validate()
		guard.Release()

		if err != nil {
			log.Fatalf("validate %s: %v", name, err)
		}
	}

	fmt.Println()
	fmt.Println("=== Heap Memory Timeline ===")

	timeline := table.NewWriter()
	timeline.SetOutputMirror(os.Stdout)
	timeline.SetStyle(table.StyleLight)
	timeline.AppendHeader(table.Row{"Phase", "InUse", "Sys", "Idle", "GCs"})

	for _, s := range snapshots {
		timeline.AppendRow(table.Row{
			s.label, humanize.Bytes(s.heapInUse), humanize.Bytes(s.heapSys), humanize.Bytes(s.heapIdle), s.numGC,
		})
	}

	timeline.Render()

	fmt.Println()
	fmt.Println("=== Hibernation Memory Deltas ===")

	for i := 0; i+1 < len(snapshots); i++ {
		curr := snapshots[i]

		next := snapshots[i+1]
		if strings.HasSuffix(curr.label, "before_hibernate") && strings.HasSuffix(next.label, "after_hibernate") {
			delta := float64(curr.heapInUse) - float64(next.heapInUse)
			pct := (delta / float64(curr.heapInUse)) * 100
			fmt.Printf("  %s -> %s: %.1f MB freed (%.1f%%)\n",
				curr.label, next.label, delta/1e6, pct)
		}
	}
}
