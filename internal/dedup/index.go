package dedup

import (
	"sort"
	"sync"

	"memecat/internal/catalog"
	"memecat/internal/fingerprint"
)

// Candidate is an index entry within the threshold of a query fingerprint.
type Candidate struct {
	Filename string
	Distance int
}

// Index maps filenames to fingerprints for items eligible for clustering.
type Index struct {
	mu      sync.RWMutex
	entries map[string]fingerprint.Fingerprint
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]fingerprint.Fingerprint)}
}

// Replace swaps the index contents for entries.
func (ix *Index) Replace(entries []catalog.IndexEntry) {
	next := make(map[string]fingerprint.Fingerprint, len(entries))
	for _, entry := range entries {
		next[entry.Filename] = fingerprint.Fingerprint(entry.Fingerprint)
	}
	ix.mu.Lock()
	ix.entries = next
	ix.mu.Unlock()
}

// Put records or replaces the fingerprint for filename.
func (ix *Index) Put(filename string, fp fingerprint.Fingerprint) {
	ix.mu.Lock()
	ix.entries[filename] = fp
	ix.mu.Unlock()
}

// Forget drops filenames from the index.
func (ix *Index) Forget(filenames ...string) {
	ix.mu.Lock()
	for _, name := range filenames {
		delete(ix.entries, name)
	}
	ix.mu.Unlock()
}

// Get returns the indexed fingerprint for filename.
func (ix *Index) Get(filename string) (fingerprint.Fingerprint, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	fp, ok := ix.entries[filename]
	return fp, ok
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Candidates scans the index for entries within threshold of fp, excluding
// self. Results are ordered by distance, then filename.
func (ix *Index) Candidates(self string, fp fingerprint.Fingerprint, threshold int) []Candidate {
	ix.mu.RLock()
	var out []Candidate
	for name, other := range ix.entries {
		if name == self {
			continue
		}
		if d := fingerprint.Distance(fp, other); d <= threshold {
			out = append(out, Candidate{Filename: name, Distance: d})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Filename < out[j].Filename
	})
	return out
}
