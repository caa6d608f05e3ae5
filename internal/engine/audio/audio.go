// Package audio provides the sound effect sample table used by animations.
package audio

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/animation"
	"github.com/Faultbox/midgard-anim/internal/logger"
	gmath "github.com/Faultbox/midgard-anim/pkg/math"
)

// DefaultSampleRate is the default sample rate for audio playback.
const DefaultSampleRate = beep.SampleRate(44100)

// Positional falloff in world units: full volume up to FalloffStart,
// silent from FalloffEnd.
const (
	FalloffStart = 200
	FalloffEnd   = 2200
)

var _ animation.Audio = (*Manager)(nil)

// sample is one registered sound. buf is decoded on first play when the
// sample was created by name only.
type sample struct {
	name string
	buf  *beep.Buffer
	refs int
}

// Manager owns the sample table and mixes sound effects.
type Manager struct {
	mu sync.RWMutex

	files animation.FileReader

	// State
	initialized bool
	muted       bool
	sampleRate  beep.SampleRate
	listener    gmath.Vec3

	// Volume settings (0.0 to 1.0)
	masterVolume float64
	sfxVolLevel  float64

	// SFX mixer for concurrent sound effects
	sfxMixer *beep.Mixer

	samples []*sample // indexed by SampleID, nil when free
	byName  map[string]animation.SampleID
	free    []animation.SampleID
}

// New creates a new audio manager reading WAV files through files.
func New(files animation.FileReader) *Manager {
	return &Manager{
		files:        files,
		sampleRate:   DefaultSampleRate,
		masterVolume: 1.0,
		sfxVolLevel:  1.0,
		sfxMixer:     &beep.Mixer{},
		byName:       make(map[string]animation.SampleID),
	}
}

// Init initializes the speaker.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	err := speaker.Init(m.sampleRate, m.sampleRate.N(time.Second/30))
	if err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	speaker.Play(m.sfxMixer)

	m.initialized = true
	return nil
}

// Close stops all sounds and shuts the speaker down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return
	}
	speaker.Clear()
	speaker.Close()
	m.initialized = false
}

// IsInitialized returns whether the audio system is initialized.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Enabled reports whether samples are audible.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized && !m.muted
}

// SetMuted silences or restores all sound effects.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

// SetListener moves the point positional samples are heard from.
func (m *Manager) SetListener(pos gmath.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = pos
}

// SetMasterVolume sets the master volume (0.0 to 1.0).
func (m *Manager) SetMasterVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterVolume = clamp(vol, 0, 1)
}

// SetSFXVolume sets the SFX volume (0.0 to 1.0).
func (m *Manager) SetSFXVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sfxVolLevel = clamp(vol, 0, 1)
}

// GetMasterVolume returns the master volume.
func (m *Manager) GetMasterVolume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.masterVolume
}

// GetSFXVolume returns the SFX volume.
func (m *Manager) GetSFXVolume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sfxVolLevel
}

// gain wraps s so its amplitude is scaled linearly by vol (0.0 to 1.0).
func gain(s beep.Streamer, vol float64) *effects.Volume {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol)}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// attenuation scales volume linearly between FalloffStart and FalloffEnd.
func attenuation(listener, pos gmath.Vec3) float64 {
	d := float64(listener.Distance(pos))
	switch {
	case d <= FalloffStart:
		return 1
	case d >= FalloffEnd:
		return 0
	}
	return 1 - (d-FalloffStart)/(FalloffEnd-FalloffStart)
}

// LoadSample reads and decodes the WAV at path, sharing the entry with
// earlier loads of the same path. It returns NoSample when the file cannot
// be used.
func (m *Manager) LoadSample(path string) animation.SampleID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[path]; ok {
		s := m.samples[id]
		if s.buf == nil {
			buf, err := m.decode(path)
			if err != nil {
				logger.Warn("sample not loaded", zap.String("path", path), zap.Error(err))
				return animation.NoSample
			}
			s.buf = buf
		}
		s.refs++
		return id
	}

	buf, err := m.decode(path)
	if err != nil {
		logger.Warn("sample not loaded", zap.String("path", path), zap.Error(err))
		return animation.NoSample
	}
	return m.register(path, buf)
}

// CreateSample registers path without reading it. The file is decoded the
// first time the sample plays.
func (m *Manager) CreateSample(path string) animation.SampleID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[path]; ok {
		m.samples[id].refs++
		return id
	}
	return m.register(path, nil)
}

func (m *Manager) register(path string, buf *beep.Buffer) animation.SampleID {
	s := &sample{name: path, buf: buf, refs: 1}

	var id animation.SampleID
	if n := len(m.free); n > 0 {
		id = m.free[n-1]
		m.free = m.free[:n-1]
		m.samples[id] = s
	} else {
		id = animation.SampleID(len(m.samples))
		m.samples = append(m.samples, s)
	}
	m.byName[path] = id

	logger.Debug("sample registered", zap.String("path", path), zap.Int32("id", int32(id)))
	return id
}

func (m *Manager) decode(path string) (*beep.Buffer, error) {
	if m.files == nil {
		return nil, fmt.Errorf("no file source for %s", path)
	}
	data, err := m.files.ReadFile(path)
	if err != nil {
		return nil, err
	}

	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	return buf, nil
}

// get returns the live sample for id. Caller holds mu.
func (m *Manager) get(id animation.SampleID) *sample {
	if id < 0 || int(id) >= len(m.samples) {
		return nil
	}
	return m.samples[id]
}

// FreeSample drops one reference to id and releases it with the last one.
func (m *Manager) FreeSample(id animation.SampleID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(id)
	if s == nil {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	delete(m.byName, s.name)
	m.samples[id] = nil
	m.free = append(m.free, id)
}

// SampleName returns the path id was loaded from, or "" for unknown ids.
func (m *Manager) SampleName(id animation.SampleID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s := m.get(id); s != nil {
		return s.name
	}
	return ""
}

// Len returns the number of registered samples.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byName)
}

// PlaySample mixes id in at pos, attenuated by distance to the listener.
// A nil pos plays at full volume.
func (m *Manager) PlaySample(id animation.SampleID, pos *gmath.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized || m.muted {
		return
	}

	s := m.get(id)
	if s == nil {
		return
	}
	if s.buf == nil {
		buf, err := m.decode(s.name)
		if err != nil {
			logger.Warn("sample not playable", zap.String("path", s.name), zap.Error(err))
			return
		}
		s.buf = buf
	}

	vol := m.masterVolume * m.sfxVolLevel
	if pos != nil {
		vol *= attenuation(m.listener, *pos)
	}
	if vol <= 0 {
		return
	}

	var streamer beep.Streamer = s.buf.Streamer(0, s.buf.Len())
	if rate := s.buf.Format().SampleRate; rate != m.sampleRate {
		streamer = beep.Resample(4, rate, m.sampleRate, streamer)
	}

	volStreamer := gain(streamer, vol)

	speaker.Lock()
	m.sfxMixer.Add(volStreamer)
	speaker.Unlock()
}
