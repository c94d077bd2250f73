package render

import (
	"image"
	"math"
	"sync"
)

// DefaultCacheSize is the number of base bitmaps kept when no size is given.
const DefaultCacheSize = 8

// BitmapKey identifies a rasterized page. Scales are compared after rounding
// to four decimals so float noise from the scaler does not defeat the cache.
type BitmapKey struct {
	Page  int
	Scale float64
}

func keyFor(page int, scale float64) BitmapKey {
	return BitmapKey{Page: page, Scale: math.Round(scale*1e4) / 1e4}
}

// BitmapCache is a thread-safe least recently used cache of base page
// bitmaps. Cached images are shared and must not be drawn on.
type BitmapCache struct {
	mutex    sync.Mutex
	capacity int
	items    map[BitmapKey]*bitmapNode
	head     *bitmapNode // most recently used
	tail     *bitmapNode // least recently used
	hits     int64
	misses   int64
}

type bitmapNode struct {
	key  BitmapKey
	img  *image.RGBA
	prev *bitmapNode
	next *bitmapNode
}

// NewBitmapCache creates a cache holding at most capacity bitmaps.
func NewBitmapCache(capacity int) *BitmapCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c := &BitmapCache{
		capacity: capacity,
		items:    make(map[BitmapKey]*bitmapNode),
		head:     &bitmapNode{},
		tail:     &bitmapNode{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the bitmap for page at scale and marks it recently used.
func (c *BitmapCache) Get(page int, scale float64) (*image.RGBA, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, ok := c.items[keyFor(page, scale)]; ok {
		c.unlink(node)
		c.pushFront(node)
		c.hits++
		return node.img, true
	}
	c.misses++
	return nil, false
}

// Put stores a bitmap, evicting the least recently used entry when full.
func (c *BitmapCache) Put(page int, scale float64, img *image.RGBA) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := keyFor(page, scale)
	if node, ok := c.items[key]; ok {
		node.img = img
		c.unlink(node)
		c.pushFront(node)
		return
	}

	node := &bitmapNode{key: key, img: img}
	c.pushFront(node)
	c.items[key] = node

	if len(c.items) > c.capacity {
		lru := c.tail.prev
		c.unlink(lru)
		delete(c.items, lru.key)
	}
}

// Purge drops every cached bitmap, e.g. when the document changes.
func (c *BitmapCache) Purge() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[BitmapKey]*bitmapNode)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Len returns the number of cached bitmaps.
func (c *BitmapCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Keys returns cached keys from most to least recently used.
func (c *BitmapCache) Keys() []BitmapKey {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	keys := make([]BitmapKey, 0, len(c.items))
	for n := c.head.next; n != c.tail; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Stats returns hit and miss counters.
func (c *BitmapCache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}
	return CacheStats{
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  hitRate,
		Size:     len(c.items),
		Capacity: c.capacity,
	}
}

func (c *BitmapCache) pushFront(n *bitmapNode) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *BitmapCache) unlink(n *bitmapNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate_percent"`
	Size     int     `json:"current_size"`
	Capacity int     `json:"max_capacity"`
}
