package registry

import (
	"sync"

	"github.com/open-ch/alertpacket/pkg/packet"
)

// Entry is a schema as registered under a subject.
type Entry struct {
	ID      int
	Subject string
	Version int
	Schema  *packet.Schema
}

type subjectVersion struct {
	subject string
	version int
}

// Cache holds fetched schemas by ID and by subject and version. Registered
// schemas are immutable, so entries are never evicted. It is safe for
// concurrent use.
type Cache struct {
	mutex     sync.RWMutex
	byID      map[int]*packet.Schema
	byVersion map[subjectVersion]Entry
}

func NewCache() *Cache {
	return &Cache{
		byID:      map[int]*packet.Schema{},
		byVersion: map[subjectVersion]Entry{},
	}
}

func (c *Cache) ByID(id int) (*packet.Schema, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	s, ok := c.byID[id]
	return s, ok
}

func (c *Cache) ByVersion(subject string, version int) (Entry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.byVersion[subjectVersion{subject, version}]
	return e, ok
}

// Add stores e by ID and, when it names a subject, by subject and version.
func (c *Cache) Add(e Entry) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.byID[e.ID] = e.Schema
	if e.Subject != "" {
		c.byVersion[subjectVersion{e.Subject, e.Version}] = e
	}
}

// Len returns the number of cached IDs.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.byID)
}
