package backend

import "sync"

// Cache decodes stored bulk documents into lookup tables, reusing the last
// table for as long as the stored document is unchanged.
type Cache struct {
	m     sync.RWMutex
	raw   string
	table Table
}

// Table returns the decoded table for raw.
func (c *Cache) Table(raw string) (Table, error) {
	c.m.RLock()
	table, cached := c.table, c.table != nil && c.raw == raw
	c.m.RUnlock()

	if cached {
		return table, nil
	}

	table, err := DecodeTable(raw)
	if err != nil {
		return nil, err
	}

	c.m.Lock()
	defer c.m.Unlock()

	c.raw = raw
	c.table = table

	return table, nil
}
