package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/rbforest/pkg/config"
	"github.com/Sumatoshi-tech/rbforest/pkg/observability"
	"github.com/Sumatoshi-tech/rbforest/pkg/rbtree"
)

const (
	flagKeys = "keys"

	defaultHibernateKeys = 100_000
)

type hibernateFlags struct {
	format string
	keys   int
	trees  int
	shards int
	seed   int64
}

func newHibernateCommand(cli *app) *cobra.Command {
	flags := hibernateFlags{keys: defaultHibernateKeys}

	cmd := &cobra.Command{
		Use:   "hibernate",
		Short: "Hibernate a populated forest, boot it again and validate it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.keys <= 0 {
				return fmt.Errorf("%w: --%s must be positive", config.ErrInvalidKeyspace, flagKeys)
			}

			return cli.run(cmd, observability.ModeCLI, flags.apply(cmd), func(ctx context.Context, sess *session) error {
				report, runErr := runHibernate(ctx, sess, flags.keys)
				if runErr != nil {
					return runErr
				}

				renderErr := renderHibernate(cmd.OutOrStdout(), sess.cfg.Stress.Format, report)
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

	cmd.Flags().IntVar(&flags.keys, flagKeys, defaultHibernateKeys, "number of keys spread over the trees")
	cmd.Flags().IntVar(&flags.trees, flagTrees, 0, "number of trees (default from config)")
	cmd.Flags().IntVar(&flags.shards, flagShards, 0, "number of arenas (default from config)")
	cmd.Flags().Int64Var(&flags.seed, flagSeed, 0, "random seed (default from config)")
	cmd.Flags().StringVar(&flags.format, flagFormat, "", "report format: table, json or yaml (default from config)")

	return cmd
}

func (flags *hibernateFlags) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		set := cmd.Flags()

		if set.Changed(flagTrees) {
			cfg.Stress.Trees = flags.trees
		}

		if set.Changed(flagShards) {
			cfg.Arena.Shards = flags.shards
		}

		if set.Changed(flagSeed) {
			cfg.Stress.Seed = flags.seed
		}

		if set.Changed(flagFormat) {
			cfg.Stress.Format = flags.format
		}
	}
}

// forestDigest summarizes the contents of every tree so that a boot can be checked
// against the state before hibernation.
type forestDigest map[string]treeDigest

type treeDigest struct {
	len      int
	checksum int64
}

func digest(forest *rbtree.Forest[int64, int64]) forestDigest {
	sums := forestDigest{}

	for _, name := range forest.Names() {
		tree, _ := forest.Lookup(name)
		guard := tree.Read()

		entry := sums[name]
		for key, value := range guard.All() {
			entry.len++
			entry.checksum = entry.checksum*31 + (key ^ value)
		}

		guard.Release()

		sums[name] = entry
	}

	return sums
}

func runHibernate(ctx context.Context, sess *session, keys int) (*hibernateReport, error) {
	forest := newForest(ctx, sess)
	rng := rand.New(rand.NewPCG(uint64(sess.cfg.Stress.Seed), 0)) //nolint:gosec // reproducible workload, not crypto.

	for idx := range keys {
		tree := forest.Tree(treeName(idx % sess.cfg.Stress.Trees))

		guard := tree.Allocate()
		guard.Insert(rng.Int64(), int64(idx))
		guard.Release()
	}

	before := digest(forest)
	codec := rbtree.Int64Codec{}

	start := time.Now()

	err := forest.Hibernate(codec, codec)
	if err != nil {
		return nil, err
	}

	hibernated := time.Since(start)
	compressed, raw := forest.HibernatedSize(), forest.HibernatedRawSize()

	sess.providers.Logger.InfoContext(ctx, "forest hibernated",
		observability.AttrHibernateKeys, keys,
		observability.AttrHibernateBytes, compressed,
		observability.AttrHibernateRawBytes, raw,
		observability.AttrHibernateElapsed, hibernated,
	)

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int(observability.AttrHibernateKeys, keys),
		attribute.Int(observability.AttrHibernateBytes, compressed),
		attribute.Int(observability.AttrHibernateRawBytes, raw),
		attribute.Int(observability.AttrForestShards, forest.ShardCount()),
	)

	start = time.Now()

	err = forest.Boot(codec, codec)
	if err != nil {
		return nil, err
	}

	booted := time.Since(start)

	trees := inspectForest(forest)
	after := digest(forest)

	for idx := range trees {
		if trees[idx].Error == "" && before[trees[idx].Name] != after[trees[idx].Name] {
			trees[idx].Error = "contents changed across hibernation"
		}
	}

	return &hibernateReport{
		Trees:           trees,
		Keys:            keys,
		Shards:          forest.ShardCount(),
		RawBytes:        raw,
		CompressedBytes: compressed,
		HibernateMillis: float64(hibernated) / float64(time.Millisecond),
		BootMillis:      float64(booted) / float64(time.Millisecond),
		Passed:          allPassed(trees),
	}, nil
}
