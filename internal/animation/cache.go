package animation

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// DefaultCapacity is the number of distinct animations the cache holds.
const DefaultCapacity = 900

// Cache errors.
var (
	ErrCacheFull = errors.New("animation cache full")
)

// FileReader reads whole files from the game data.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// forgetter is implemented by readers that cache file contents.
type forgetter interface {
	Forget(path string)
}

// Handle refers to a cache slot. The zero Handle refers to nothing, and a
// Handle goes stale once its slot is cleared.
type Handle struct {
	slot int32
	gen  uint32
}

// Valid reports whether h was ever returned by Load. It does not check
// whether the slot is still live; use Cache.Get for that.
func (h Handle) Valid() bool {
	return h.gen != 0
}

// Slot returns the slot index h points at.
func (h Handle) Slot() int {
	return int(h.slot)
}

// Animation is a named clip with its alternates.
type Animation struct {
	Path       string
	Locks      int
	Alternates []*Track // at least one; only ever appended to
}

type slot struct {
	anim Animation
	gen  uint32
	live bool
}

// Holder owns handles into the cache, typically an entity.
type Holder interface {
	// DropAnimations releases every handle the holder keeps and resets its
	// playback layers.
	DropAnimations(c *Cache)
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the number of slots.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithAudio sets the audio system used for keyframe samples.
func WithAudio(a Audio) Option {
	return func(c *Cache) {
		c.audio = a
	}
}

// WithRand sets the random source for alternate selection.
func WithRand(r *rand.Rand) Option {
	return func(c *Cache) {
		c.rng = r
	}
}

// Cache is a fixed-capacity, reference-counted table of animations.
// It is not safe for concurrent use.
type Cache struct {
	files    FileReader
	audio    Audio
	rng      *rand.Rand
	capacity int

	slots  []slot
	byPath map[string]int
	free   []int // stack of free slot indices
}

// NewCache creates an empty cache reading files through files.
func NewCache(files FileReader, opts ...Option) *Cache {
	c := &Cache{
		files:    files,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	c.slots = make([]slot, c.capacity)
	c.byPath = make(map[string]int, c.capacity)
	c.free = make([]int, 0, c.capacity)
	for i := c.capacity - 1; i >= 0; i-- {
		c.free = append(c.free, i)
	}
	return c
}

// Capacity returns the number of slots.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Len returns the number of live animations.
func (c *Cache) Len() int {
	return len(c.byPath)
}

// Load returns the animation at path, loading it and its alternates on first
// use. Every successful Load must be paired with a Release.
func (c *Cache) Load(path string) (Handle, error) {
	h, err := c.load(path)
	if err != nil && !errors.Is(err, ErrCacheFull) {
		logger.Warn("animation not found", zap.String("path", path), zap.Error(err))
	}
	return h, err
}

func (c *Cache) load(path string) (Handle, error) {
	if i, ok := c.byPath[path]; ok {
		s := &c.slots[i]
		s.anim.Locks++
		return Handle{slot: int32(i), gen: s.gen}, nil
	}

	if len(c.free) == 0 {
		logger.Error("animation cache full",
			zap.String("path", path), zap.Int("capacity", c.capacity))
		return Handle{}, fmt.Errorf("%w: loading %s", ErrCacheFull, path)
	}

	track, err := c.readTrack(path)
	if err != nil {
		return Handle{}, err
	}

	i := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]

	s := &c.slots[i]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	s.anim = Animation{
		Path:       path,
		Locks:      1,
		Alternates: []*Track{track},
	}
	c.byPath[path] = i

	for n := 2; ; n++ {
		altPath := AlternatePath(path, n)
		alt, err := c.readTrack(altPath)
		if err != nil {
			logger.Debug("alternate probe ended", zap.String("path", altPath), zap.Error(err))
			break
		}
		s.anim.Alternates = append(s.anim.Alternates, alt)
	}

	logger.Debug("animation loaded",
		zap.String("path", path),
		zap.Int("slot", i),
		zap.Int("alternates", len(s.anim.Alternates)))

	return Handle{slot: int32(i), gen: s.gen}, nil
}

func (c *Cache) readTrack(path string) (*Track, error) {
	data, err := c.files.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var samples SampleLoader
	if c.audio != nil {
		samples = c.audio
	}
	return Decode(data, path, samples)
}

// Lookup returns the handle for a loaded path without taking a lock.
func (c *Cache) Lookup(path string) (Handle, bool) {
	i, ok := c.byPath[path]
	if !ok {
		return Handle{}, false
	}
	return Handle{slot: int32(i), gen: c.slots[i].gen}, true
}

// Get returns the animation h refers to, or nil if h is zero or stale.
// The pointer stays valid until the slot is cleared.
func (c *Cache) Get(h Handle) *Animation {
	if !h.Valid() || int(h.slot) < 0 || int(h.slot) >= len(c.slots) {
		return nil
	}
	s := &c.slots[h.slot]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return &s.anim
}

// Track returns alternate alt of h, or nil when either is out of range.
func (c *Cache) Track(h Handle, alt int) *Track {
	a := c.Get(h)
	if a == nil || alt < 0 || alt >= len(a.Alternates) {
		return nil
	}
	return a.Alternates[alt]
}

// Release drops one lock on h. Locks never go below zero, and stale
// handles are ignored.
func (c *Cache) Release(h Handle) {
	a := c.Get(h)
	if a == nil {
		return
	}
	a.Locks--
	if a.Locks < 0 {
		a.Locks = 0
	}
}

// PickAlternate chooses an alternate of h at random, avoiding exclude when
// there is more than one.
func (c *Cache) PickAlternate(h Handle, exclude int) int {
	a := c.Get(h)
	if a == nil {
		return 0
	}
	return pickAlternate(c.rng, len(a.Alternates), exclude)
}

// TotalTranslation returns the root translation at the end of alternate alt.
func (c *Cache) TotalTranslation(h Handle, alt int) math.Vec3 {
	return c.Track(h, alt).LastTranslate()
}

// PurgeUnused clears every animation with no locks and returns how many
// were cleared.
func (c *Cache) PurgeUnused() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].live && c.slots[i].anim.Locks == 0 {
			c.Clear(i)
			n++
		}
	}
	if n > 0 {
		logger.Debug("purged unused animations", zap.Int("count", n))
	}
	return n
}

// Clear frees slot i regardless of its locks. Handles to it go stale.
func (c *Cache) Clear(i int) {
	if i < 0 || i >= len(c.slots) || !c.slots[i].live {
		return
	}
	s := &c.slots[i]
	for _, t := range s.anim.Alternates {
		c.freeSamples(t)
	}
	delete(c.byPath, s.anim.Path)
	s.anim = Animation{}
	s.live = false
	c.free = append(c.free, i)
}

// ClearAll frees every slot.
func (c *Cache) ClearAll() {
	for i := range c.slots {
		c.Clear(i)
	}
}

func (c *Cache) freeSamples(t *Track) {
	if c.audio == nil {
		return
	}
	for i := range t.Keyframes {
		if id := t.Keyframes[i].Sample; id != NoSample {
			c.audio.FreeSample(id)
		}
	}
}

// ReloadAll re-reads every loaded animation from disk. Holders drop their
// handles first so no stale handle survives; reloaded animations start with
// one lock. Failed reloads are joined into the returned error.
func (c *Cache) ReloadAll(holders ...Holder) error {
	for _, h := range holders {
		if h != nil {
			h.DropAnimations(c)
		}
	}

	f, canForget := c.files.(forgetter)

	var errs []error
	for i := range c.slots {
		if !c.slots[i].live {
			continue
		}
		path := c.slots[i].anim.Path
		alts := len(c.slots[i].anim.Alternates)
		c.Clear(i)
		if canForget {
			// One past the last alternate so a newly added variant is seen
			f.Forget(path)
			for n := 2; n <= alts+1; n++ {
				f.Forget(AlternatePath(path, n))
			}
		}
		if _, err := c.Load(path); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("animations reloaded", zap.Int("count", c.Len()), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Entry describes one live slot.
type Entry struct {
	Slot       int
	Path       string
	Locks      int
	Alternates int
	Keyframes  int
}

// Stats lists live animations in slot order.
func (c *Cache) Stats() []Entry {
	entries := make([]Entry, 0, len(c.byPath))
	for i := range c.slots {
		s := &c.slots[i]
		if !s.live {
			continue
		}
		e := Entry{
			Slot:       i,
			Path:       s.anim.Path,
			Locks:      s.anim.Locks,
			Alternates: len(s.anim.Alternates),
		}
		for _, t := range s.anim.Alternates {
			e.Keyframes += len(t.Keyframes)
		}
		entries = append(entries, e)
	}
	return entries
}
