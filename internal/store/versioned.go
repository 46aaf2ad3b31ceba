package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/angeless/travelcs/internal/chunk"
	kberrors "github.com/angeless/travelcs/internal/errors"
)

// VersionedStore layers copy-on-write index versions over a vector store and
// a keyword index. A reindex stages chunks into a building version while
// queries keep hitting the active one; promotion is an atomic pointer swap.
// Chunks removed by a promotion are tombstoned, not erased, so an earlier
// version can be re-promoted until the sweeper purges them.
type VersionedStore struct {
	mu       sync.RWMutex
	vectors  VectorStore
	keywords KeywordIndex

	entries  map[string]*IndexEntry
	versions map[string]*IndexVersion
	sets     map[string]map[string]struct{} // version ID -> chunk IDs
	activeID string
	seq      uint64

	closed bool
}

// versionedState is the gob persistence payload. Sets are flattened to
// slices because gob rejects the empty struct used as a set value.
type versionedState struct {
	Entries  map[string]*IndexEntry
	Versions map[string]*IndexVersion
	Sets     map[string][]string
	ActiveID string
	Seq      uint64
}

// NewVersionedStore creates a versioned store over the given backends.
func NewVersionedStore(vectors VectorStore, keywords KeywordIndex) *VersionedStore {
	return &VersionedStore{
		vectors:  vectors,
		keywords: keywords,
		entries:  make(map[string]*IndexEntry),
		versions: make(map[string]*IndexVersion),
		sets:     make(map[string]map[string]struct{}),
	}
}

// Begin opens a new building version branched from the active one. The new
// version starts with a copy of the active chunk set, so an incremental
// reindex only stages what changed.
func (s *VersionedStore) Begin(ctx context.Context) (*IndexVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}

	s.seq++
	v := &IndexVersion{
		ID:        fmt.Sprintf("v%s-%04d", time.Now().UTC().Format("20060102T150405"), s.seq),
		ParentID:  s.activeID,
		Status:    VersionBuilding,
		CreatedAt: time.Now().UTC(),
	}

	set := make(map[string]struct{})
	if s.activeID != "" {
		for id := range s.sets[s.activeID] {
			set[id] = struct{}{}
		}
	}

	s.versions[v.ID] = v
	s.sets[v.ID] = set

	slog.Debug("index_version_opened",
		slog.String("version", v.ID),
		slog.String("parent", v.ParentID),
		slog.Int("inherited_chunks", len(set)))

	cp := *v
	return &cp, nil
}

// Stage adds chunks with their vectors to a building version. Chunk IDs are
// content-addressed, so staging an unchanged chunk is a no-op apart from
// membership, and a previously tombstoned chunk is simply referenced again.
func (s *VersionedStore) Stage(ctx context.Context, versionID string, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}
	v, ok := s.versions[versionID]
	if !ok {
		return fmt.Errorf("unknown version %s", versionID)
	}
	if v.Status != VersionBuilding {
		return fmt.Errorf("version %s is %s, not building", versionID, v.Status)
	}

	newIDs := make([]string, 0, len(chunks))
	newVectors := make([][]float32, 0, len(chunks))
	newDocs := make([]*KeywordDocument, 0, len(chunks))

	for i, c := range chunks {
		if _, exists := s.entries[c.ID]; !exists {
			newIDs = append(newIDs, c.ID)
			newVectors = append(newVectors, vectors[i])
			newDocs = append(newDocs, &KeywordDocument{ID: c.ID, Content: c.Text})
			s.entries[c.ID] = &IndexEntry{Chunk: c, Vector: vectors[i]}
		}
		s.sets[versionID][c.ID] = struct{}{}
	}

	if len(newIDs) > 0 {
		if err := s.vectors.Add(ctx, newIDs, newVectors); err != nil {
			return kberrors.IndexBuildError("stage vectors", err)
		}
		if err := s.keywords.Index(ctx, newDocs); err != nil {
			return kberrors.IndexBuildError("stage keyword documents", err)
		}
	}

	return nil
}

// Unstage removes chunk IDs from a building version's set. The underlying
// entries stay untouched; other versions may still reference them.
func (s *VersionedStore) Unstage(ctx context.Context, versionID string, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}
	v, ok := s.versions[versionID]
	if !ok {
		return fmt.Errorf("unknown version %s", versionID)
	}
	if v.Status != VersionBuilding {
		return fmt.Errorf("version %s is %s, not building", versionID, v.Status)
	}

	for _, id := range chunkIDs {
		delete(s.sets[versionID], id)
	}
	return nil
}

// Promote atomically makes a version the one queries are served from.
// Chunks present in the outgoing active set but not in the new one are
// tombstoned; chunks in the new set get any tombstone cleared. Works for
// building versions and, for rollback to a previous state, retired ones.
func (s *VersionedStore) Promote(ctx context.Context, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}
	v, ok := s.versions[versionID]
	if !ok {
		return fmt.Errorf("unknown version %s", versionID)
	}
	if v.Status == VersionRolledBack {
		return fmt.Errorf("version %s was rolled back", versionID)
	}
	if versionID == s.activeID {
		return nil
	}

	now := time.Now().UTC()
	newSet := s.sets[versionID]

	if s.activeID != "" {
		old := s.versions[s.activeID]
		for id := range s.sets[s.activeID] {
			if _, kept := newSet[id]; !kept {
				if e, exists := s.entries[id]; exists && !e.Deleted() {
					e.DeletedAt = now
				}
			}
		}
		old.Status = VersionRetired
	}

	for id := range newSet {
		if e, exists := s.entries[id]; exists {
			e.DeletedAt = time.Time{}
		}
	}

	v.Status = VersionActive
	v.PromotedAt = now
	v.ChunkCount = len(newSet)
	s.activeID = versionID

	slog.Info("index_version_promoted",
		slog.String("version", versionID),
		slog.Int("chunks", len(newSet)))
	return nil
}

// Rollback discards a building version that failed validation. Entries
// staged only by this version are removed physically; everything inherited
// from the parent stays.
func (s *VersionedStore) Rollback(ctx context.Context, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}
	v, ok := s.versions[versionID]
	if !ok {
		return fmt.Errorf("unknown version %s", versionID)
	}
	if v.Status != VersionBuilding {
		return fmt.Errorf("version %s is %s, only building versions roll back", versionID, v.Status)
	}

	var orphaned []string
	for id := range s.sets[versionID] {
		if s.referencedElsewhere(id, versionID) {
			continue
		}
		orphaned = append(orphaned, id)
	}

	if len(orphaned) > 0 {
		if err := s.vectors.Delete(ctx, orphaned); err != nil {
			return fmt.Errorf("rollback vectors: %w", err)
		}
		if err := s.keywords.Delete(ctx, orphaned); err != nil {
			return fmt.Errorf("rollback keyword documents: %w", err)
		}
		for _, id := range orphaned {
			delete(s.entries, id)
		}
	}

	v.Status = VersionRolledBack
	s.sets[versionID] = make(map[string]struct{})

	slog.Warn("index_version_rolled_back",
		slog.String("version", versionID),
		slog.Int("discarded_chunks", len(orphaned)))
	return nil
}

// referencedElsewhere reports whether any other version's set contains id.
// Caller holds the lock.
func (s *VersionedStore) referencedElsewhere(id, excludeVersion string) bool {
	for vid, set := range s.sets {
		if vid == excludeVersion {
			continue
		}
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// Active returns the active version, or false if nothing was promoted yet.
func (s *VersionedStore) Active() (IndexVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return IndexVersion{}, false
	}
	return *s.versions[s.activeID], true
}

// Version returns a version by ID.
func (s *VersionedStore) Version(id string) (IndexVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok {
		return IndexVersion{}, false
	}
	return *v, true
}

// Versions returns all known versions, oldest first.
func (s *VersionedStore) Versions() []IndexVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]IndexVersion, 0, len(s.versions))
	for _, v := range s.versions {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SearchVector finds the k nearest live chunks in the active version.
// The underlying graph is overfetched because it still holds staged and
// tombstoned vectors that must be filtered out.
func (s *VersionedStore) SearchVector(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	activeID := s.activeID
	s.mu.RUnlock()

	if activeID == "" {
		return []*VectorResult{}, nil
	}
	return s.SearchVectorIn(ctx, activeID, query, k)
}

// SearchVectorIn searches within a specific version's chunk set. Canary
// validation uses this to query a staged version before promoting it.
func (s *VersionedStore) SearchVectorIn(ctx context.Context, versionID string, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}
	set, ok := s.sets[versionID]
	if !ok {
		return nil, fmt.Errorf("unknown version %s", versionID)
	}
	if len(set) == 0 {
		return []*VectorResult{}, nil
	}

	overfetch := k*3 + 10
	raw, err := s.vectors.Search(ctx, query, overfetch)
	if err != nil {
		return nil, err
	}

	results := make([]*VectorResult, 0, k)
	for _, r := range raw {
		if _, ok := set[r.ID]; !ok {
			continue
		}
		results = append(results, r)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// SearchKeyword finds live chunks in the active version matching the query.
func (s *VersionedStore) SearchKeyword(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}
	live := s.liveSet()
	if len(live) == 0 {
		return []*KeywordResult{}, nil
	}

	raw, err := s.keywords.Search(ctx, query, limit*3+10)
	if err != nil {
		return nil, err
	}

	results := make([]*KeywordResult, 0, limit)
	for _, r := range raw {
		if _, ok := live[r.ChunkID]; !ok {
			continue
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// liveSet returns the active version's chunk set. Caller holds the lock.
func (s *VersionedStore) liveSet() map[string]struct{} {
	if s.activeID == "" {
		return nil
	}
	return s.sets[s.activeID]
}

// GetChunk returns a chunk by ID regardless of tombstone state.
func (s *VersionedStore) GetChunk(id string) (chunk.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return chunk.Chunk{}, false
	}
	return e.Chunk, true
}

// GetChunks returns chunks for the given IDs, skipping unknown ones.
func (s *VersionedStore) GetChunks(ids []string) []chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chunk.Chunk, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e.Chunk)
		}
	}
	return out
}

// LiveCount returns the number of chunks visible to queries.
func (s *VersionedStore) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.liveSet())
}

// TombstoneCount returns the number of soft-deleted entries.
func (s *VersionedStore) TombstoneCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if e.Deleted() {
			n++
		}
	}
	return n
}

// Purge physically removes tombstoned entries older than cutoff and drops
// non-active versions created before it. Returns the number of entries
// removed. After a purge those chunks are gone; re-promoting a version that
// referenced them is no longer possible.
func (s *VersionedStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}

	for id, v := range s.versions {
		if id == s.activeID || !v.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.versions, id)
		delete(s.sets, id)
	}

	var expired []string
	for id, e := range s.entries {
		if e.Deleted() && e.DeletedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := s.vectors.Delete(ctx, expired); err != nil {
		return 0, fmt.Errorf("purge vectors: %w", err)
	}
	if err := s.keywords.Delete(ctx, expired); err != nil {
		return 0, fmt.Errorf("purge keyword documents: %w", err)
	}
	for _, id := range expired {
		delete(s.entries, id)
		for _, set := range s.sets {
			delete(set, id)
		}
	}

	slog.Info("tombstones_purged",
		slog.Int("removed", len(expired)),
		slog.Time("cutoff", cutoff))
	return len(expired), nil
}

// Save persists versioned state and the vector graph under dir
// (temp file + rename). The keyword index persists itself when disk-backed.
func (s *VersionedStore) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	state := versionedState{
		Entries:  s.entries,
		Versions: s.versions,
		Sets:     make(map[string][]string, len(s.sets)),
		ActiveID: s.activeID,
		Seq:      s.seq,
	}
	for vid, set := range s.sets {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		state.Sets[vid] = ids
	}

	path := filepath.Join(dir, "versions.gob")
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(state); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode state: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	return s.vectors.Save(filepath.Join(dir, "vectors.hnsw"))
}

// Load restores versioned state and the vector graph from dir.
func (s *VersionedStore) Load(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "store is closed", nil)
	}

	file, err := os.Open(filepath.Join(dir, "versions.gob"))
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var state versionedState
	if err := gob.NewDecoder(file).Decode(&state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	s.entries = state.Entries
	s.versions = state.Versions
	s.activeID = state.ActiveID
	s.seq = state.Seq
	s.sets = make(map[string]map[string]struct{}, len(state.Sets))
	for vid, ids := range state.Sets {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		s.sets[vid] = set
	}

	return s.vectors.Load(filepath.Join(dir, "vectors.hnsw"))
}

// Close closes the underlying stores.
func (s *VersionedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.vectors.Close(); err != nil {
		firstErr = err
	}
	if err := s.keywords.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
