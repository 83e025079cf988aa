package forensic

import (
	"fmt"
	"sort"

	"gorecal/domain/core"
)

// MerkleLeaf is one hashed snapshot field. The dirty marker exists for future
// incremental rebuilds; today a rebuild re-hashes every leaf regardless.
type MerkleLeaf struct {
	Path  string        `json:"path"`
	Hash  core.LeafHash `json:"hash"`
	dirty bool
}

// MerkleTree is a binary hash tree over a snapshot's flattened fields
type MerkleTree struct {
	Leaves []MerkleLeaf    `json:"leaves"`
	Root   core.MerkleRoot `json:"root"`
	levels [][]core.Hash
}

// LeafBytes builds the preimage for one leaf: path ‖ NUL ‖ canonical value.
// The NUL separator keeps the path/value boundary unambiguous.
func LeafBytes(path string, value interface{}) ([]byte, error) {
	canonical, err := core.CanonicalJSON(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize field %s: %w", path, err)
	}
	buf := make([]byte, 0, len(path)+1+len(canonical))
	buf = append(buf, path...)
	buf = append(buf, 0)
	buf = append(buf, canonical...)
	return buf, nil
}

// BuildMerkleTree hashes every field (sorted by path) into leaves and folds
// them level by level, duplicating the last node at levels with odd counts.
func BuildMerkleTree(fields map[string]interface{}) (*MerkleTree, error) {
	if len(fields) == 0 {
		return nil, core.ErrEmptySnapshot
	}

	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	leaves := make([]MerkleLeaf, 0, len(paths))
	level := make([]core.Hash, 0, len(paths))
	for _, path := range paths {
		preimage, err := LeafBytes(path, fields[path])
		if err != nil {
			return nil, err
		}
		h := core.NewHash(preimage)
		leaves = append(leaves, MerkleLeaf{Path: path, Hash: core.LeafHash(h)})
		level = append(level, h)
	}

	levels := [][]core.Hash{level}
	for len(level) > 1 {
		level = buildNextLevel(level)
		levels = append(levels, level)
	}

	return &MerkleTree{
		Leaves: leaves,
		Root:   core.MerkleRoot(level[0]),
		levels: levels,
	}, nil
}

// buildNextLevel pairs adjacent nodes, duplicating the last on odd counts
func buildNextLevel(level []core.Hash) []core.Hash {
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}
	next := make([]core.Hash, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next = append(next, nodeHash(level[i], level[i+1]))
	}
	return next
}

// nodeHash combines two child hashes into their parent
func nodeHash(left, right core.Hash) core.Hash {
	return core.NewHash([]byte(left.String() + right.String()))
}

// MarkDirty flags a leaf for rebuild. The current rebuild strategy re-hashes
// everything, so the marker only records intent.
func (t *MerkleTree) MarkDirty(path string) {
	for i := range t.Leaves {
		if t.Leaves[i].Path == path {
			t.Leaves[i].dirty = true
			return
		}
	}
}

// DirtyCount returns how many leaves are flagged
func (t *MerkleTree) DirtyCount() int {
	n := 0
	for _, leaf := range t.Leaves {
		if leaf.dirty {
			n++
		}
	}
	return n
}

// Rebuild recomputes the whole tree from fresh fields and clears all dirty
// markers. Sub-tree-only rehashing is an open optimization; correctness never
// depends on it.
func (t *MerkleTree) Rebuild(fields map[string]interface{}) error {
	fresh, err := BuildMerkleTree(fields)
	if err != nil {
		return err
	}
	t.Leaves = fresh.Leaves
	t.Root = fresh.Root
	t.levels = fresh.levels
	return nil
}

// Depth returns the number of levels from leaves to root
func (t *MerkleTree) Depth() int {
	return len(t.levels)
}
