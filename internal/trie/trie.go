// Package trie implements a case-insensitive prefix tree over filenames,
// giving filename search proportional to query length rather than corpus size.
package trie

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type node struct {
	children map[rune]*node
	// paths holds the full paths whose filename terminates at this node.
	// Multiple paths share a node when the same filename exists in
	// different directories.
	paths map[string]struct{}
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Trie is a thread-safe filename prefix tree.
type Trie struct {
	mu   sync.RWMutex
	root *node
	size int // number of stored paths
}

// New creates an empty filename trie.
func New() *Trie {
	return &Trie{root: newNode()}
}

// Add inserts path under its lowercased base filename.
// O(len(filename)).
func (t *Trie) Add(path string) {
	name := strings.ToLower(filepath.Base(path))
	if name == "" || name == "." {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for _, r := range name {
		child, ok := n.children[r]
		if !ok {
			child = newNode()
			n.children[r] = child
		}
		n = child
	}
	if n.paths == nil {
		n.paths = make(map[string]struct{})
	}
	if _, exists := n.paths[path]; !exists {
		n.paths[path] = struct{}{}
		t.size++
	}
}

// Remove deletes path from the trie. Removing the last path at a node
// un-marks it as terminal; the branch itself is not pruned.
func (t *Trie) Remove(path string) {
	name := strings.ToLower(filepath.Base(path))

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for _, r := range name {
		child, ok := n.children[r]
		if !ok {
			return
		}
		n = child
	}
	if n.paths == nil {
		return
	}
	if _, exists := n.paths[path]; exists {
		delete(n.paths, path)
		t.size--
	}
	if len(n.paths) == 0 {
		n.paths = nil
	}
}

// Search returns all stored paths whose filename starts with prefix
// (case-insensitive), in lexicographic order. maxResults <= 0 means
// unbounded.
func (t *Trie) Search(prefix string, maxResults int) []string {
	prefix = strings.ToLower(prefix)

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for _, r := range prefix {
		child, ok := n.children[r]
		if !ok {
			return nil
		}
		n = child
	}

	var results []string
	collect(n, &results, maxResults)
	sort.Strings(results)
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// Autocomplete returns the distinct bare filenames matching prefix,
// in lexicographic order.
func (t *Trie) Autocomplete(prefix string, maxResults int) []string {
	paths := t.Search(prefix, 0)

	seen := make(map[string]struct{}, len(paths))
	var names []string
	for _, p := range paths {
		name := filepath.Base(p)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	if maxResults > 0 && len(names) > maxResults {
		names = names[:maxResults]
	}
	return names
}

// Len returns the number of stored paths.
func (t *Trie) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// collect depth-first gathers paths beneath n. Children are visited in
// rune order so traversal is deterministic.
func collect(n *node, out *[]string, limit int) {
	if limit > 0 && len(*out) >= limit {
		return
	}
	for p := range n.paths {
		*out = append(*out, p)
	}

	runes := make([]rune, 0, len(n.children))
	for r := range n.children {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	for _, r := range runes {
		collect(n.children[r], out, limit)
	}
}
