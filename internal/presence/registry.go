package presence

import (
	"sort"
	"sync"
	"time"
)

// Registry maps logical user ids to their single active connection. Records
// are never deleted; an offline user keeps a record with a nil Conn.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	byConn  map[string]string // conn id -> user id
	version uint64
	now     func() time.Time
}

type Option func(*Registry)

// WithClock 注入时钟，单测用。
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*Record),
		byConn:  make(map[string]string),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register upserts the user's record and makes conn its only addressable
// connection. A previous connection for the same user stops being routable
// but is left open.
func (r *Registry) Register(userID string, conn Conn, profile Profile) (Record, error) {
	if userID == "" || conn == nil {
		return Record{}, ErrInvalidRegistration
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	// the same handle re-registering under another identity detaches it first
	if prevUser, ok := r.byConn[conn.ID()]; ok && prevUser != userID {
		r.detachLocked(prevUser, now)
	}

	rec := r.records[userID]
	if rec == nil {
		rec = &Record{UserID: userID}
		r.records[userID] = rec
	}
	if rec.Conn != nil && rec.Conn.ID() != conn.ID() {
		delete(r.byConn, rec.Conn.ID())
	}
	rec.Conn = conn
	rec.Profile = profile
	rec.Status = StatusOnline
	rec.LastSeen = now
	r.byConn[conn.ID()] = userID
	r.version++
	return *rec, nil
}

// Unregister marks the user offline. It reports false for unknown or already
// offline users.
func (r *Registry) Unregister(userID string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detachLocked(userID, now)
}

// Release unregisters the owner of conn only while conn is still that user's
// active connection, so a superseded connection closing never evicts its
// replacement.
func (r *Registry) Release(conn Conn) (Record, bool) {
	if conn == nil {
		return Record{}, false
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[conn.ID()]
	if !ok || !r.detachLocked(userID, now) {
		return Record{}, false
	}
	return *r.records[userID], true
}

func (r *Registry) detachLocked(userID string, now time.Time) bool {
	rec := r.records[userID]
	if rec == nil || rec.Conn == nil {
		return false
	}
	delete(r.byConn, rec.Conn.ID())
	rec.Conn = nil
	rec.Status = StatusOffline
	rec.LastSeen = now
	r.version++
	return true
}

// LookupConnection returns the user's active connection; false means offline.
func (r *Registry) LookupConnection(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.records[userID]
	if rec == nil || rec.Conn == nil {
		return nil, false
	}
	return rec.Conn, true
}

// LookupByConnection resolves which user currently owns conn.
func (r *Registry) LookupByConnection(conn Conn) (string, bool) {
	if conn == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[conn.ID()]
	return userID, ok
}

// Get returns a copy of the user's record, online or not.
func (r *Registry) Get(userID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.records[userID]
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// Touch records a heartbeat for the owner of conn.
func (r *Registry) Touch(conn Conn) bool {
	if conn == nil {
		return false
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[conn.ID()]
	if !ok {
		return false
	}
	r.records[userID].LastSeen = now
	return true
}

// SetStatus changes the status of a connected user. Going offline is only
// possible through Unregister.
func (r *Registry) SetStatus(userID string, status Status) (Record, error) {
	if status != StatusOnline && status != StatusAway {
		return Record{}, ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[userID]
	if rec == nil || rec.Conn == nil {
		return Record{}, ErrNotConnected
	}
	if rec.Status != status {
		rec.Status = status
		r.version++
	}
	return *rec, nil
}

// AllOnline returns every user with an addressable connection, away users
// included.
func (r *Registry) AllOnline() []Record {
	_, out := r.Snapshot()
	return out
}

// Snapshot returns AllOnline together with the registry version it was read at.
func (r *Registry) Snapshot() (uint64, []Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.byConn))
	for _, rec := range r.records {
		if rec.Conn != nil {
			out = append(out, *rec)
		}
	}
	sortRecords(out)
	return r.version, out
}

// All returns every known record including recently seen offline users.
func (r *Registry) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sortRecords(out)
	return out
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].UserID < recs[j].UserID })
}
