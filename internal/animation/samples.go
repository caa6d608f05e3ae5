package animation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-anim/internal/logger"
)

// ErrInvalidSnapshot is returned when a sample snapshot cannot be decoded.
var ErrInvalidSnapshot = errors.New("invalid sample snapshot")

// SampleBinding ties a keyframe, by its global traversal index, to the path
// of the sample it plays.
type SampleBinding struct {
	Index int    `yaml:"index"`
	Path  string `yaml:"path"`
}

// SampleSnapshot carries the sample bindings of every loaded keyframe across
// a save and restore. Keyframes are numbered from 1 in slot, alternate,
// keyframe order.
type SampleSnapshot struct {
	ID       string          `yaml:"id"`
	Bindings []SampleBinding `yaml:"bindings"`
}

// PushSamples records the sample of every keyframe that has one.
func (c *Cache) PushSamples() *SampleSnapshot {
	snap := &SampleSnapshot{ID: newSnapshotID()}
	if c.audio == nil {
		return snap
	}

	c.eachKeyframe(func(index int, kf *Keyframe) bool {
		if kf.Sample != NoSample {
			snap.Bindings = append(snap.Bindings, SampleBinding{
				Index: index,
				Path:  c.audio.SampleName(kf.Sample),
			})
		}
		return true
	})

	logger.Debug("animation samples pushed",
		zap.String("id", snap.ID), zap.Int("count", len(snap.Bindings)))
	return snap
}

// PopSamples recreates the samples in snap on the keyframes they were taken
// from and returns how many were restored. The cache must hold the same
// animations in the same slots as when the snapshot was taken.
func (c *Cache) PopSamples(snap *SampleSnapshot) int {
	if snap == nil || c.audio == nil || !c.audio.Enabled() {
		return 0
	}

	restored := 0
	next := 0
	c.eachKeyframe(func(index int, kf *Keyframe) bool {
		if next >= len(snap.Bindings) {
			return false
		}
		if b := snap.Bindings[next]; b.Index == index {
			kf.Sample = c.audio.CreateSample(b.Path)
			restored++
			next++
		}
		return true
	})

	if restored != len(snap.Bindings) {
		logger.Warn("sample snapshot does not match loaded animations",
			zap.String("id", snap.ID),
			zap.Int("restored", restored),
			zap.Int("expected", len(snap.Bindings)))
	}
	return restored
}

// eachKeyframe visits every keyframe of every live slot in traversal order
// until fn returns false.
func (c *Cache) eachKeyframe(fn func(index int, kf *Keyframe) bool) {
	index := 0
	for i := range c.slots {
		s := &c.slots[i]
		if !s.live {
			continue
		}
		for _, t := range s.anim.Alternates {
			for k := range t.Keyframes {
				index++
				if !fn(index, &t.Keyframes[k]) {
					return
				}
			}
		}
	}
}

// Encode serializes the snapshot as YAML.
func (s *SampleSnapshot) Encode() ([]byte, error) {
	return yaml.Marshal(s)
}

// DecodeSampleSnapshot parses a snapshot written by Encode.
func DecodeSampleSnapshot(data []byte) (*SampleSnapshot, error) {
	var s SampleSnapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		return nil, fmt.Errorf("%w: id %q: %v", ErrInvalidSnapshot, s.ID, err)
	}
	last := 0
	for _, b := range s.Bindings {
		if b.Index <= last {
			return nil, fmt.Errorf("%w: index %d out of order", ErrInvalidSnapshot, b.Index)
		}
		last = b.Index
	}
	return &s, nil
}

func newSnapshotID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
