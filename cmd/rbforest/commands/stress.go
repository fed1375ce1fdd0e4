package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
	"github.com/Sumatoshi-tech/rbforest/pkg/config"
	"github.com/Sumatoshi-tech/rbforest/pkg/observability"
	"github.com/Sumatoshi-tech/rbforest/pkg/rbtree"
)

const (
	flagTrees    = "trees"
	flagWorkers  = "workers"
	flagOps      = "ops"
	flagKeyspace = "keyspace"
	flagSeed     = "seed"
	flagFormat   = "format"
	flagShards   = "shards"

	// cancelCheckInterval is how many operations a worker runs between context checks.
	cancelCheckInterval = 1024

	// scanLength is the number of entries a scan operation visits.
	scanLength = 16
)

type opKind int

const (
	opInsert opKind = iota
	opRemove
	opGet
	opMove
	opScan
	opKindCount
)

var opNames = [opKindCount]string{"insert", "remove", "get", "move", "scan"}

// opMix is the cumulative percentage at which each kind stops being picked.
var opMix = [opKindCount]int{40, 65, 90, 95, 100}

func (kind opKind) String() string {
	return opNames[kind]
}

type opCounters struct {
	total [opKindCount]atomic.Int64
	hits  [opKindCount]atomic.Int64

	// dropped counts moves whose entry was freed because both trees held the key.
	dropped atomic.Int64
}

func (c *opCounters) snapshot() []opReport {
	ops := make([]opReport, 0, opKindCount)
	for kind := range opKindCount {
		ops = append(ops, opReport{Op: kind.String(), Count: c.total[kind].Load(), Hits: c.hits[kind].Load()})
	}

	return ops
}

type stressFlags struct {
	format   string
	seed     int64
	trees    int
	workers  int
	ops      int
	keyspace int
	shards   int
}

func newStressCommand(cli *app) *cobra.Command {
	var flags stressFlags

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a randomized concurrent workload over split trees",
		Long: `Run a randomized mix of inserts, removes, lookups, moves and scans from several
workers over a forest of trees, then validate every tree and the arena accounting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.run(cmd, observability.ModeStress, flags.apply(cmd), func(ctx context.Context, sess *session) error {
				report, runErr := runStress(ctx, sess)
				if runErr != nil {
					return runErr
				}

				renderErr := renderStress(cmd.OutOrStdout(), sess.cfg.Stress.Format, report)
				if renderErr != nil {
					return renderErr
				}

				if !report.Passed {
					return ErrValidationFailed
				}

				return nil
			})
		},
	}

	cmd.Flags().IntVar(&flags.trees, flagTrees, 0, "number of trees (default from config)")
	cmd.Flags().IntVar(&flags.workers, flagWorkers, 0, "number of concurrent workers (default from config)")
	cmd.Flags().IntVar(&flags.ops, flagOps, 0, "total number of operations (default from config)")
	cmd.Flags().IntVar(&flags.keyspace, flagKeyspace, 0, "keys are drawn from [0, keyspace) (default from config)")
	cmd.Flags().Int64Var(&flags.seed, flagSeed, 0, "random seed (default from config)")
	cmd.Flags().StringVar(&flags.format, flagFormat, "", "report format: table, json or yaml (default from config)")
	cmd.Flags().IntVar(&flags.shards, flagShards, 0, "number of arenas the trees are spread over (default from config)")

	return cmd
}

// apply returns an override copying the flags set on the command line into the config.
func (flags *stressFlags) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		set := cmd.Flags()

		if set.Changed(flagTrees) {
			cfg.Stress.Trees = flags.trees
		}

		if set.Changed(flagWorkers) {
			cfg.Stress.Workers = flags.workers
		}

		if set.Changed(flagOps) {
			cfg.Stress.Ops = flags.ops
		}

		if set.Changed(flagKeyspace) {
			cfg.Stress.Keyspace = flags.keyspace
		}

		if set.Changed(flagSeed) {
			cfg.Stress.Seed = flags.seed
		}

		if set.Changed(flagFormat) {
			cfg.Stress.Format = flags.format
		}

		if set.Changed(flagShards) {
			cfg.Arena.Shards = flags.shards
		}
	}
}

// newForest builds a forest from the arena config, reporting grow steps to the logger
// and the metrics.
func newForest(ctx context.Context, sess *session) *rbtree.Forest[int64, int64] {
	opts := append(sess.cfg.Arena.Options(),
		arena.WithLogger(sess.providers.Logger),
		arena.WithGrowHook(sess.metrics.GrowHook(ctx)),
	)

	return rbtree.NewForest[int64, int64](sess.cfg.Arena.Shards, opts...)
}

func treeName(idx int) string {
	return fmt.Sprintf("tree-%03d", idx)
}

func runStress(ctx context.Context, sess *session) (*stressReport, error) {
	cfg := sess.cfg.Stress
	forest := newForest(ctx, sess)

	trees := make([]*rbtree.Tree[int64, int64], cfg.Trees)
	for idx := range trees {
		trees[idx] = forest.Tree(treeName(idx))
	}

	sess.providers.Logger.InfoContext(ctx, "stress started",
		observability.AttrForestTrees, cfg.Trees,
		observability.AttrStressWorkers, cfg.Workers,
		observability.AttrStressOps, cfg.Ops,
		observability.AttrStressKeyspace, cfg.Keyspace,
		observability.AttrStressSeed, cfg.Seed,
		observability.AttrForestShards, forest.ShardCount(),
	)

	counters := &opCounters{}
	group, groupCtx := errgroup.WithContext(ctx)
	start := time.Now()

	for idx := range cfg.Workers {
		worker := &stressWorker{
			trees:    trees,
			counters: counters,
			metrics:  sess.metrics,
			rng:      rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(idx))), //nolint:gosec // reproducible workload, not crypto.
			keyspace: int64(cfg.Keyspace),
			ops:      cfg.Ops/cfg.Workers + boolToInt(idx < cfg.Ops%cfg.Workers),
		}

		group.Go(func() error {
			return worker.run(groupCtx)
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("stress workers: %w", err)
	}

	elapsed := time.Since(start)
	treeReports := inspectForest(forest)

	report := &stressReport{
		Operations:     counters.snapshot(),
		DroppedMoves:   counters.dropped.Load(),
		Trees:          treeReports,
		Seed:           cfg.Seed,
		Workers:        cfg.Workers,
		Shards:         forest.ShardCount(),
		Keyspace:       cfg.Keyspace,
		ElapsedSeconds: elapsed.Seconds(),
		Passed:         allPassed(treeReports),
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int(observability.AttrForestTrees, cfg.Trees),
		attribute.Int(observability.AttrForestShards, report.Shards),
		attribute.Int(observability.AttrStressWorkers, cfg.Workers),
		attribute.Int64(observability.AttrStressOps, totalOps(report.Operations)),
		attribute.Int64(observability.AttrStressSeed, cfg.Seed),
		attribute.Int(observability.AttrTreeFailures, failures(treeReports)),
		attribute.Int64(observability.AttrStressDropped, report.DroppedMoves),
		attribute.Bool(observability.AttrStressPassed, report.Passed),
	)

	sess.providers.Logger.InfoContext(ctx, "stress finished",
		observability.AttrStressOps, totalOps(report.Operations),
		observability.AttrStressElapsed, elapsed,
		observability.AttrStressPassed, report.Passed,
	)

	return report, nil
}

type stressWorker struct {
	trees    []*rbtree.Tree[int64, int64]
	counters *opCounters
	metrics  *observability.Metrics
	rng      *rand.Rand
	keyspace int64
	ops      int
}

func (w *stressWorker) run(ctx context.Context) error {
	defer w.metrics.TrackWorker(ctx)()

	for op := range w.ops {
		if op%cancelCheckInterval == 0 {
			err := ctx.Err()
			if err != nil {
				return err
			}
		}

		kind := w.pick()
		start := time.Now()

		hit, err := w.apply(kind)
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}

		w.counters.total[kind].Add(1)

		if hit {
			w.counters.hits[kind].Add(1)
		}

		w.metrics.RecordOp(ctx, kind.String(), hit, time.Since(start))
	}

	return nil
}

func (w *stressWorker) pick() opKind {
	roll := w.rng.IntN(opMix[opKindCount-1])

	for kind, limit := range opMix {
		if roll < limit {
			return opKind(kind)
		}
	}

	return opGet
}

// apply runs one operation and reports whether it found the key it looked for.
func (w *stressWorker) apply(kind opKind) (bool, error) {
	tree := w.trees[w.rng.IntN(len(w.trees))]
	key := w.rng.Int64N(w.keyspace)

	switch kind {
	case opInsert:
		guard := tree.Allocate()
		defer guard.Release()

		return !guard.Insert(key, w.rng.Int64()), nil
	case opRemove:
		guard := tree.Allocate()
		defer guard.Release()

		_, found := guard.Remove(key)

		return found, nil
	case opMove:
		dst := w.trees[w.rng.IntN(len(w.trees))]
		if !dst.SharesArena(tree) {
			return false, nil
		}

		moved, err := rbtree.Move(dst, tree, key)

		switch {
		case errors.Is(err, rbtree.ErrDuplicateKey):
			return false, nil
		case errors.Is(err, rbtree.ErrEntryDropped):
			w.counters.dropped.Add(1)

			return false, nil
		}

		return moved, err
	case opScan:
		guard := tree.Read()
		defer guard.Release()

		_, _, found := guard.Ceil(key)

		entries := guard.Iter()
		for range scanLength / 2 {
			entries.Next()
			entries.NextBack()
		}

		return found, nil
	default:
		guard := tree.Read()
		defer guard.Release()

		return guard.Contains(key), nil
	}
}

// inspectForest validates every tree and checks that the trees of each shard account
// for every occupied slot of its arena.
func inspectForest(forest *rbtree.Forest[int64, int64]) []treeReport {
	stats := forest.Stats()
	reports := make([]treeReport, 0, len(stats))
	owned := make(map[int]int)

	for _, tree := range stats {
		owned[tree.Shard] += tree.Len
	}

	for _, tree := range stats {
		report := treeReport{
			Name:     tree.Name,
			Shard:    tree.Shard,
			Len:      tree.Len,
			Capacity: tree.Cap,
			Shared:   tree.Shared,
		}

		err := validateTree(forest, tree.Name)

		switch {
		case err != nil:
			report.Error = err.Error()
		case owned[tree.Shard] != tree.Shared:
			report.Error = fmt.Sprintf("shard holds %d slots, trees own %d", tree.Shared, owned[tree.Shard])
		}

		reports = append(reports, report)
	}

	return reports
}

func validateTree(forest *rbtree.Forest[int64, int64], name string) error {
	tree, ok := forest.Lookup(name)
	if !ok {
		return fmt.Errorf("tree %s vanished", name)
	}

	guard := tree.Read()
	defer guard.Release()

	return guard.Validate()
}

func allPassed(reports []treeReport) bool {
	return failures(reports) == 0
}

func failures(reports []treeReport) int {
	count := 0

	for _, report := range reports {
		if report.Error != "" {
			count++
		}
	}

	return count
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
