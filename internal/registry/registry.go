package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strconv"

	"github.com/loykin/lazyrestore/internal/metrics"
	"github.com/loykin/lazyrestore/internal/store"
	"github.com/loykin/lazyrestore/internal/tab"
)

// DefaultKey is the store key holding the serialized mapping.
const DefaultKey = "lazyRestoreMap"

// Registry maps tab ids to their pending-restore entries and mirrors the
// whole mapping into a durable store after every mutation.
//
// A Registry is not safe for concurrent use. The manager's worker goroutine
// owns it.
type Registry struct {
	st      store.Store
	key     string
	log     *slog.Logger
	loaded  bool
	entries map[tab.ID]Entry
}

// New returns an unloaded Registry backed by st. A nil st keeps state in
// memory only.
func New(st store.Store, key string, log *slog.Logger) *Registry {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		st:      st,
		key:     key,
		log:     log.With("component", "registry"),
		entries: make(map[tab.ID]Entry),
	}
}

// EnsureLoaded hydrates the mapping from the store on first call. Load or
// decode failures leave the registry empty; they are never returned.
func (r *Registry) EnsureLoaded(ctx context.Context) {
	if r.loaded {
		return
	}
	r.loaded = true
	if r.st == nil {
		return
	}
	raw, err := r.st.Get(ctx, r.key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.IncStoreError("load")
			r.log.Warn("load restore map failed, starting empty", "error", err)
		}
		return
	}
	var m map[string]Entry
	if err := json.Unmarshal(raw, &m); err != nil {
		metrics.IncStoreError("decode")
		r.log.Warn("decode restore map failed, starting empty", "error", err)
		return
	}
	for k, e := range m {
		id, err := tab.ParseID(k)
		if err != nil {
			r.log.Warn("skipping restore entry with bad tab id", "key", k, "error", err)
			continue
		}
		if e.DiscardState == "" {
			e.DiscardState = StatePending
		}
		r.entries[id] = e
	}
	r.log.Debug("restore map loaded", "entries", len(r.entries))
}

// Loaded reports whether EnsureLoaded has run.
func (r *Registry) Loaded() bool { return r.loaded }

// Register stores e under id, replacing any previous entry, and persists.
func (r *Registry) Register(ctx context.Context, id tab.ID, e Entry) {
	if e.DiscardState == "" {
		e.DiscardState = StatePending
	}
	r.entries[id] = e
	r.Persist(ctx)
}

// Update replaces the entry for id in place and persists. It is a no-op when
// id is not registered.
func (r *Registry) Update(ctx context.Context, id tab.ID, e Entry) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	r.entries[id] = e
	r.Persist(ctx)
	return true
}

// Remove deletes the entry for id. It persists only when something was deleted.
func (r *Registry) Remove(ctx context.Context, id tab.ID) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	r.Persist(ctx)
	return true
}

func (r *Registry) Get(id tab.ID) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) Len() int { return len(r.entries) }

// Entries returns a copy of the mapping ordered by tab id.
func (r *Registry) Entries() []Record {
	out := make([]Record, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, Record{TabID: id, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// Record pairs an entry with its tab id for listing.
type Record struct {
	TabID tab.ID `json:"tab_id"`
	Entry
}

// Persist writes the full mapping to the store. Failures are logged and
// swallowed; the in-memory mapping stays authoritative.
func (r *Registry) Persist(ctx context.Context) {
	if r.st == nil {
		return
	}
	m := make(map[string]Entry, len(r.entries))
	for id, e := range r.entries {
		m[strconv.Itoa(int(id))] = e
	}
	b, err := json.Marshal(m)
	if err != nil {
		metrics.IncStoreError("encode")
		r.log.Warn("encode restore map failed", "error", err)
		return
	}
	if err := r.st.Set(ctx, r.key, b); err != nil {
		metrics.IncStoreError("persist")
		r.log.Warn("persist restore map failed", "error", err)
	}
}
