package lottery

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ManualChain is a Chain whose time, height and seed are set by hand.
// Unless a seed is pinned with SetSeed, the seed is derived from the current
// time and height so it changes with every Advance.
type ManualChain struct {
	mu     sync.RWMutex
	now    uint64
	height uint64
	seed   *[32]byte
}

// NewManualChain creates a chain at the given time and height
func NewManualChain(now, height uint64) *ManualChain {
	return &ManualChain{now: now, height: height}
}

// Now implements Chain
func (c *ManualChain) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Height implements Chain
func (c *ManualChain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Seed implements Chain
func (c *ManualChain) Seed() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.seed != nil {
		return *c.seed
	}
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], c.now)
	binary.BigEndian.PutUint64(buf[8:], c.height)
	return blake2b.Sum256(buf[:])
}

// Set moves the chain to an absolute time and height
func (c *ManualChain) Set(now, height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now, c.height = now, height
}

// Advance moves the chain forward
func (c *ManualChain) Advance(seconds, blocks uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	c.height += blocks
}

// SetSeed pins the seed
func (c *ManualChain) SetSeed(seed [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seed = &seed
}

// SystemChain is a Chain backed by the wall clock.
// Height counts blockTime periods since genesis, the seed is fresh crypto/rand output.
type SystemChain struct {
	genesis   time.Time
	blockTime time.Duration
}

// NewSystemChain creates a wall-clock chain producing one block every blockTime
func NewSystemChain(blockTime time.Duration) *SystemChain {
	if blockTime <= 0 {
		blockTime = time.Second
	}
	return &SystemChain{genesis: time.Now(), blockTime: blockTime}
}

// Now implements Chain
func (c *SystemChain) Now() uint64 {
	return uint64(time.Now().Unix())
}

// Height implements Chain
func (c *SystemChain) Height() uint64 {
	return uint64(time.Since(c.genesis) / c.blockTime)
}

// Seed implements Chain
func (c *SystemChain) Seed() [32]byte {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand 不可用时退化为时间派生
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
		return blake2b.Sum256(buf[:])
	}
	return seed
}
