// Package index implements the incremental indexing pipeline: change
// detection against the manifest, versioned staging with canary validation,
// serialized reindex runs, and tombstone sweeping.
package index

import (
	"sort"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/store"
)

// ChangeSet is the outcome of comparing live source documents against the
// manifest snapshot.
type ChangeSet struct {
	// Added are documents not present in the manifest.
	Added []*chunk.Document

	// Modified are documents whose source hash differs from the manifest.
	Modified []*chunk.Document

	// Deleted are manifest document IDs absent from the source.
	Deleted []string
}

// Empty reports whether nothing changed.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Total returns the number of affected documents.
func (c *ChangeSet) Total() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// Detect compares source documents with the indexed snapshot by source hash.
// It reads nothing and writes nothing; the caller decides what to do with
// the result. Output ordering is deterministic.
func Detect(current []*chunk.Document, indexed map[string]store.DocumentRecord) *ChangeSet {
	cs := &ChangeSet{}

	seen := make(map[string]struct{}, len(current))
	for _, doc := range current {
		seen[doc.ID] = struct{}{}

		rec, exists := indexed[doc.ID]
		switch {
		case !exists:
			cs.Added = append(cs.Added, doc)
		case rec.SourceHash != doc.SourceHash:
			cs.Modified = append(cs.Modified, doc)
		}
	}

	for docID := range indexed {
		if _, ok := seen[docID]; !ok {
			cs.Deleted = append(cs.Deleted, docID)
		}
	}

	sort.Slice(cs.Added, func(i, j int) bool { return cs.Added[i].ID < cs.Added[j].ID })
	sort.Slice(cs.Modified, func(i, j int) bool { return cs.Modified[i].ID < cs.Modified[j].ID })
	sort.Strings(cs.Deleted)

	return cs
}
