package rbtree

import (
	"cmp"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
	"github.com/Sumatoshi-tech/rbforest/pkg/safeconv"
)

// ErrHibernateShards is returned when at least one shard fails to hibernate or boot.
var ErrHibernateShards = errors.New("failed to hibernate shards")

// TreeStats describes one named tree of a forest.
type TreeStats struct {
	Name  string
	Shard int
	arena.Stats
}

// Forest spreads named trees over several arenas so that allocations in trees of
// different shards never contend.
type Forest[K, V any] struct {
	// seeds are empty trees, one per shard, that named trees are split from.
	seeds []*Tree[K, V]

	mu    sync.Mutex
	trees map[string]*Tree[K, V]
	shard map[string]int
}

// NewForest creates a forest of shardCount arenas ordering keys with cmp.Compare.
func NewForest[K cmp.Ordered, V any](shardCount int, opts ...arena.Option) *Forest[K, V] {
	return NewForestFunc[K, V](shardCount, cmp.Compare[K], opts...)
}

// NewForestFunc creates a forest of shardCount arenas ordering keys with compare.
func NewForestFunc[K, V any](shardCount int, compare func(a, b K) int, opts ...arena.Option) *Forest[K, V] {
	if shardCount <= 0 {
		shardCount = 1
	}

	seeds := make([]*Tree[K, V], shardCount)
	for idx := range shardCount {
		seeds[idx] = NewFunc[K, V](compare, opts...)
	}

	return &Forest[K, V]{
		seeds: seeds,
		trees: make(map[string]*Tree[K, V]),
		shard: make(map[string]int),
	}
}

// ShardCount returns the number of arenas.
func (forest *Forest[K, V]) ShardCount() int {
	return len(forest.seeds)
}

// ShardOf returns the shard index a name maps to.
func (forest *Forest[K, V]) ShardOf(name string) int {
	hasher := fnv.New32a()
	hasher.Write([]byte(name))

	return int(hasher.Sum32() % safeconv.MustIntToUint32(len(forest.seeds)))
}

// Tree returns the tree called name, creating it on first use.
func (forest *Forest[K, V]) Tree(name string) *Tree[K, V] {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	tree, ok := forest.trees[name]
	if !ok {
		shard := forest.ShardOf(name)
		tree = forest.seeds[shard].Split()
		forest.trees[name] = tree
		forest.shard[name] = shard
	}

	return tree
}

// Lookup returns the tree called name if it exists.
func (forest *Forest[K, V]) Lookup(name string) (*Tree[K, V], bool) {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	tree, ok := forest.trees[name]

	return tree, ok
}

// Names returns the names of all trees in sorted order.
func (forest *Forest[K, V]) Names() []string {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	names := make([]string, 0, len(forest.trees))
	for name := range forest.trees {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Stats returns the counters of every tree, sorted by name.
func (forest *Forest[K, V]) Stats() []TreeStats {
	forest.mu.Lock()

	stats := make([]TreeStats, 0, len(forest.trees))
	trees := make(map[string]*Tree[K, V], len(forest.trees))

	for name, tree := range forest.trees {
		stats = append(stats, TreeStats{Name: name, Shard: forest.shard[name]})
		trees[name] = tree
	}

	forest.mu.Unlock()

	slices.SortFunc(stats, func(a, b TreeStats) int { return cmp.Compare(a.Name, b.Name) })

	for idx := range stats {
		stats[idx].Stats = trees[stats[idx].Name].Stats()
	}

	return stats
}

// Hibernate hibernates all shards in parallel.
func (forest *Forest[K, V]) Hibernate(keys Codec[K], values Codec[V]) error {
	return forest.fanOut(func(seed *Tree[K, V]) error {
		return seed.Hibernate(keys, values)
	})
}

// Boot boots all shards in parallel.
func (forest *Forest[K, V]) Boot(keys Codec[K], values Codec[V]) error {
	return forest.fanOut(func(seed *Tree[K, V]) error {
		return seed.Boot(keys, values)
	})
}

// HibernatedSize returns the compressed size of all shards.
func (forest *Forest[K, V]) HibernatedSize() int {
	total := 0
	for _, seed := range forest.seeds {
		total += seed.HibernatedSize()
	}

	return total
}

// HibernatedRawSize returns the size of all hibernated shards before compression.
func (forest *Forest[K, V]) HibernatedRawSize() int {
	total := 0
	for _, seed := range forest.seeds {
		total += seed.HibernatedRawSize()
	}

	return total
}

func (forest *Forest[K, V]) fanOut(action func(*Tree[K, V]) error) error {
	errs := make([]error, len(forest.seeds))

	wg := sync.WaitGroup{}
	wg.Add(len(forest.seeds))

	for idx, seed := range forest.seeds {
		go func(shardIdx int, tree *Tree[K, V]) {
			defer wg.Done()

			err := action(tree)
			if err != nil {
				errs[shardIdx] = fmt.Errorf("shard %d: %w", shardIdx, err)
			}
		}(idx, seed)
	}

	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHibernateShards, err)
	}

	return nil
}
