// Package blocklist holds the set of users the local identity has blocked.
package blocklist

import (
	"sort"
	"strings"
	"sync"
)

// Cache is a thread-safe set of lower-cased usernames.
// The zero value is ready to use.
type Cache struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// New creates an empty cache
func New() *Cache {
	return &Cache{users: make(map[string]struct{})}
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Contains reports whether username is blocked, ignoring case
func (c *Cache) Contains(username string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.users[normalize(username)]
	return ok
}

// ReplaceAll swaps the whole set in one critical section so readers see either
// the old or the new contents, never a partial merge.
func (c *Cache) ReplaceAll(usernames []string) {
	next := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		if n := normalize(u); n != "" {
			next[n] = struct{}{}
		}
	}

	c.mu.Lock()
	c.users = next
	c.mu.Unlock()
}

// Insert adds username to the set
func (c *Cache) Insert(username string) {
	n := normalize(username)
	if n == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.users == nil {
		c.users = make(map[string]struct{})
	}
	c.users[n] = struct{}{}
}

// Remove deletes username from the set
func (c *Cache) Remove(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, normalize(username))
}

// Len returns the number of blocked users
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// Snapshot returns a sorted copy of the blocked usernames
func (c *Cache) Snapshot() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.users))
	for u := range c.users {
		out = append(out, u)
	}
	c.mu.RUnlock()

	sort.Strings(out)
	return out
}
