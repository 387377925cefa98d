// internal/presence/directory.go
package presence

import (
	"sync"
	"time"
)

// Conn is the live-connection handle the directory routes to. The websocket
// layer registers its connections behind this interface; tests register
// recorders.
type Conn interface {
	// Send pushes one named event with a JSON-marshalable payload.
	// Fire-and-forget: an error means this push was lost, nothing more.
	Send(event string, payload any) error
}

// Record pairs an identity with its live connection.
type Record struct {
	Username   string
	Conn       Conn
	LastSeenAt time.Time
}

// Directory maps authenticated identity to current live-connection handle.
// It carries no authority; registration happens only after credentials are
// verified, and a missed lookup just means no live push for that side.
type Directory struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewDirectory initializes and returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		records: make(map[string]*Record),
	}
}

// Register binds the identity to the connection, replacing any previous
// binding (a reconnect supersedes the old socket).
func (d *Directory) Register(username string, conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[username] = &Record{
		Username:   username,
		Conn:       conn,
		LastSeenAt: time.Now(),
	}
}

// Unregister drops the identity's binding if conn is still the bound
// connection. A stale disconnect from a superseded socket leaves the fresh
// binding alone.
func (d *Directory) Unregister(username string, conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[username]; ok && rec.Conn == conn {
		delete(d.records, username)
	}
}

// Lookup returns the identity's live connection, or false if none.
func (d *Directory) Lookup(username string) (Conn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[username]
	if !ok {
		return nil, false
	}
	rec.LastSeenAt = time.Now()
	return rec.Conn, true
}
