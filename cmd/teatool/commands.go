package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-anim/internal/animation"
	"github.com/Faultbox/midgard-anim/internal/assets"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/engine/audio"
	"github.com/Faultbox/midgard-anim/internal/game/entity"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// openAssets builds the asset manager from the configured data sources.
// Missing archives are skipped with a warning so a loose data dir alone
// is enough to work with.
func openAssets(cfg *config.Config) (*assets.Manager, error) {
	m := assets.NewManager()
	for _, p := range cfg.Data.GRFPaths {
		if err := m.AddArchive(p); err != nil {
			logger.Warn("archive skipped", zap.String("path", p), zap.Error(err))
		}
	}
	for _, d := range cfg.Data.Dirs {
		if err := m.AddDir(d); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

// readInput reads a local file when path exists on disk, and the data
// sources otherwise.
func readInput(files *assets.Manager, path string) ([]byte, error) {
	if _, err := os.Stat(path); err == nil {
		return os.ReadFile(path)
	}
	return files.ReadFile(path)
}

// newRand seeds alternate selection. A zero seed picks one at random.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	logger.Debug("alternate seed", zap.Uint64("seed", seed))
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// newAudio creates the sound system. The speaker is only opened when
// audio is enabled; otherwise samples still resolve by name but stay silent.
func newAudio(cfg *config.Config, files *assets.Manager) *audio.Manager {
	am := audio.New(files)
	am.SetMasterVolume(float64(cfg.Audio.MasterVolume))
	am.SetSFXVolume(float64(cfg.Audio.SFXVolume))
	if !cfg.Audio.Enabled {
		return am
	}
	if err := am.Init(); err != nil {
		logger.Warn("audio disabled", zap.Error(err))
		return am
	}
	am.SetMuted(cfg.Audio.Muted)
	return am
}

// newCache wires a cache to the data sources and sound system.
func newCache(cfg *config.Config, files *assets.Manager, a animation.Audio) *animation.Cache {
	opts := []animation.Option{
		animation.WithCapacity(cfg.Animation.CacheCapacity),
		animation.WithRand(newRand(cfg.Animation.Seed)),
	}
	if a != nil {
		opts = append(opts, animation.WithAudio(a))
	}
	return animation.NewCache(files, opts...)
}

func cmdInfo(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: teatool info <anim.tea>")
	}

	files, err := openAssets(cfg)
	if err != nil {
		return err
	}
	defer files.Close()

	data, err := readInput(files, args[0])
	if err != nil {
		return err
	}
	tea, err := formats.ParseTEA(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	track, err := animation.Decode(data, args[0], nil)
	if err != nil {
		return err
	}

	layout := "legacy"
	if tea.Header.Extended() {
		layout = "extended"
	}

	var samples, steps, voids int
	for i := range tea.Keyframes {
		if tea.Keyframes[i].Sample != nil {
			samples++
		}
		if tea.Keyframes[i].Flag == animation.FlagFootstep {
			steps++
		}
	}
	for _, v := range track.VoidGroups {
		if v {
			voids++
		}
	}

	fmt.Printf("File:      %s\n", args[0])
	fmt.Printf("Identity:  %s\n", tea.Header.Identity)
	fmt.Printf("Name:      %s\n", tea.Header.Name)
	fmt.Printf("Version:   %d (%s layout)\n", tea.Header.Version, layout)
	fmt.Printf("Frames:    %d\n", tea.Header.FrameCount)
	fmt.Printf("Keyframes: %d\n", len(tea.Keyframes))
	fmt.Printf("Groups:    %d (%d void)\n", tea.Header.GroupCount, voids)
	fmt.Printf("Duration:  %.1f ms\n", track.Duration)
	fmt.Printf("Samples:   %d\n", samples)
	fmt.Printf("Footsteps: %d\n", steps)
	fmt.Printf("Checksum:  %016x\n", track.Checksum)
	return nil
}

func cmdDump(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	groups := fs.Bool("groups", false, "Also print per-group transforms")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: teatool dump [-groups] <anim.tea>")
	}

	files, err := openAssets(cfg)
	if err != nil {
		return err
	}
	defer files.Close()

	data, err := readInput(files, fs.Arg(0))
	if err != nil {
		return err
	}
	tea, err := formats.ParseTEA(data)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	track, err := animation.Decode(data, fs.Arg(0), nil)
	if err != nil {
		return err
	}

	fmt.Printf("%4s %6s %9s  %-26s %-34s %4s %s\n",
		"#", "frame", "time", "translate", "rotate", "flag", "sample")
	for i := range track.Keyframes {
		kf := &track.Keyframes[i]
		sample := "-"
		if s := tea.Keyframes[i].Sample; s != nil {
			sample = s.Name
		}
		mark := " "
		if !tea.Keyframes[i].HasTranslate() || !tea.Keyframes[i].HasRotate() {
			mark = "*"
		}
		fmt.Printf("%4d %6d %9.2f%s (%7.2f %7.2f %7.2f) (%6.3f %6.3f %6.3f %6.3f) %4d %s\n",
			i, kf.Frame, kf.Time, mark,
			kf.Translate.X, kf.Translate.Y, kf.Translate.Z,
			kf.Rotate.X, kf.Rotate.Y, kf.Rotate.Z, kf.Rotate.W,
			kf.Flag, sample)

		if !*groups {
			continue
		}
		for g := 0; g < track.GroupCount; g++ {
			if track.VoidGroups[g] {
				continue
			}
			gt := track.Group(i, g)
			fmt.Printf("     g%-3d t(%6.2f %6.2f %6.2f) q(%6.3f %6.3f %6.3f %6.3f) s(%5.2f %5.2f %5.2f)\n",
				g, gt.Translate.X, gt.Translate.Y, gt.Translate.Z,
				gt.Rotate.X, gt.Rotate.Y, gt.Rotate.Z, gt.Rotate.W,
				gt.Scale.X, gt.Scale.Y, gt.Scale.Z)
		}
	}
	fmt.Fprintln(os.Stderr, "\n(* = gap filled)")
	return nil
}

// scanResult is the outcome of decoding one file during a scan.
type scanResult struct {
	path    string
	version uint32
	keys    int
	err     error
}

func cmdScan(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	jobs := fs.Int("j", runtime.NumCPU(), "Parallel decoders")
	verbose := fs.Bool("v", false, "Print every file")
	fs.Parse(args)

	ext := ".tea"
	if fs.NArg() > 0 {
		ext = fs.Arg(0)
	}

	files, err := openAssets(cfg)
	if err != nil {
		return err
	}
	defer files.Close()

	paths, err := files.List(ext)
	if err != nil {
		return err
	}
	logger.Info("scanning animations", zap.Int("files", len(paths)), zap.Int("jobs", *jobs))

	results := make([]scanResult, len(paths))
	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))
	for i, p := range paths {
		g.Go(func() error {
			results[i] = scanFile(files, p)
			return nil
		})
	}
	g.Wait()

	versions := make(map[uint32]int)
	var failed, keys int
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", r.path, r.err)
			continue
		}
		versions[r.version]++
		keys += r.keys
		if *verbose {
			fmt.Printf("ok   %s (v%d, %d keyframes)\n", r.path, r.version, r.keys)
		}
	}

	vs := make([]uint32, 0, len(versions))
	for v := range versions {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })

	fmt.Printf("Files:     %d\n", len(paths))
	fmt.Printf("Decoded:   %d\n", len(paths)-failed)
	fmt.Printf("Failed:    %d\n", failed)
	fmt.Printf("Keyframes: %d\n", keys)
	for _, v := range vs {
		fmt.Printf("  v%d  %d\n", v, versions[v])
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to decode", failed, len(paths))
	}
	return nil
}

func scanFile(files *assets.Manager, path string) scanResult {
	r := scanResult{path: path}
	data, err := files.ReadFile(path)
	if err != nil {
		r.err = err
		return r
	}
	// Scanned files are read once; keep the asset cache small.
	files.Forget(path)

	track, err := animation.Decode(data, path, nil)
	if err != nil {
		r.err = err
		return r
	}
	r.version = binary.LittleEndian.Uint32(data[20:24])
	r.keys = len(track.Keyframes)
	return r
}

// tracingAudio prints every sample playback before passing it on.
type tracingAudio struct {
	animation.Audio
	clock *int64
}

func (t tracingAudio) PlaySample(id animation.SampleID, pos *math.Vec3) {
	where := "ambient"
	if pos != nil {
		where = fmt.Sprintf("at (%.1f %.1f %.1f)", pos.X, pos.Y, pos.Z)
	}
	fmt.Printf("%7dms  sound %s %s\n", *t.clock, t.SampleName(id), where)
	t.Audio.PlaySample(id, pos)
}

func cmdPlay(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	loop := fs.Bool("loop", false, "Loop the clip")
	reverse := fs.Bool("reverse", false, "Play backwards")
	walk := fs.Bool("walk", false, "Treat the clip as locomotion")
	player := fs.Bool("player", false, "Play as the local player")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: teatool play [-loop] [-reverse] [-walk] [-player] <anim.tea> [ms]")
	}
	total := int64(0)
	if fs.NArg() > 1 {
		ms, err := strconv.ParseInt(fs.Arg(1), 10, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid duration %q", fs.Arg(1))
		}
		total = ms
	}

	files, err := openAssets(cfg)
	if err != nil {
		return err
	}
	defer files.Close()

	am := newAudio(cfg, files)
	defer am.Close()

	var clock int64
	c := newCache(cfg, files, tracingAudio{Audio: am, clock: &clock})
	world := entity.NewManager(c)

	typ := entity.TypeNPC
	if *player {
		typ = entity.TypePlayer
	}
	e := entity.NewEntity(1, typ)
	e.Name = filepath.Base(fs.Arg(0))
	e.OnFootstep = func(_ *entity.Entity, pos math.Vec3) {
		fmt.Printf("%7dms  footstep at (%.1f %.1f %.1f)\n", clock, pos.X, pos.Y, pos.Z)
	}
	if *player {
		world.SetPlayer(e)
	} else {
		world.Add(e)
	}
	defer world.ClearAll()

	slot := entity.AnimAction
	if *walk {
		slot = entity.AnimWalk
	}
	if err := e.LoadAnim(c, slot, fs.Arg(0)); err != nil {
		return err
	}

	var flags animation.Flags
	if *loop {
		flags |= animation.FlagLoop
	}
	if *reverse {
		flags |= animation.FlagReverse
	}
	e.Play(c, 0, slot, flags)

	layer := &e.Layers[0]
	track := c.Track(layer.Current, layer.AltIdx)
	fmt.Printf("Playing %s (alternate %d, %.1f ms)\n", fs.Arg(0), layer.AltIdx, track.Duration)
	if total == 0 {
		total = int64(track.Duration)
		if *loop || *walk {
			total *= 2
		}
	}

	tick := int64(cfg.Animation.TickMS)
	realtime := am.IsInitialized()
	lastFrame := -1
	for clock < total {
		step := min(tick, total-clock)
		clock += step
		world.Update(step)

		if layer.Frame != lastFrame {
			root, _, _ := c.RootPose(layer)
			fmt.Printf("%7dms  frame %d (%.2f) root (%.1f %.1f %.1f)\n",
				clock, layer.Frame, layer.Fraction, root.X, root.Y, root.Z)
			lastFrame = layer.Frame
		}
		if layer.Ended() {
			fmt.Printf("%7dms  ended\n", clock)
			break
		}
		if realtime {
			time.Sleep(time.Duration(step) * time.Millisecond)
		}
	}

	fmt.Printf("Footsteps: %d, clips finished: %d\n", e.Footsteps, e.ClipsFinished)
	return nil
}

func cmdCache(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	snapshot := fs.String("snapshot", "", "Write the sample bindings to this YAML file")
	restore := fs.String("restore", "", "Recreate samples from a YAML snapshot after loading")
	purge := fs.Bool("purge", false, "Release every animation and purge before listing")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: teatool cache [-snapshot out.yaml] [-restore in.yaml] [-purge] <anim.tea>...")
	}

	files, err := openAssets(cfg)
	if err != nil {
		return err
	}
	defer files.Close()

	am := audio.New(files)
	c := newCache(cfg, files, am)

	var handles []animation.Handle
	var errs []error
	for _, p := range fs.Args() {
		h, err := c.Load(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		handles = append(handles, h)
	}

	if *restore != "" {
		data, err := os.ReadFile(*restore)
		if err != nil {
			return err
		}
		snap, err := animation.DecodeSampleSnapshot(data)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d samples from %s\n", c.PopSamples(snap), snap.ID)
	}

	if *snapshot != "" {
		data, err := c.PushSamples().Encode()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*snapshot, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", *snapshot)
	}

	if *purge {
		for _, h := range handles {
			c.Release(h)
		}
		fmt.Printf("Purged %d animations\n", c.PurgeUnused())
	}

	fmt.Printf("%5s %5s %4s %6s  %s\n", "slot", "locks", "alts", "keys", "path")
	for _, e := range c.Stats() {
		fmt.Printf("%5d %5d %4d %6d  %s\n", e.Slot, e.Locks, e.Alternates, e.Keyframes, e.Path)
	}
	fmt.Printf("\n%d of %d slots used, %d samples\n", c.Len(), c.Capacity(), am.Len())

	return errors.Join(errs...)
}

func cmdUpgrade(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: teatool upgrade <in.tea> <out.tea>")
	}

	tea, err := formats.ParseTEAFile(args[0])
	if err != nil {
		return err
	}
	from := tea.Header.Version
	tea.Header.Version = max(from, formats.TEAExtendedVersion)

	data, err := formats.EncodeTEA(tea)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(args[1]), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0644); err != nil {
		return err
	}

	fmt.Printf("Upgraded %s (v%d) -> %s (v%d, %d bytes)\n",
		args[0], from, args[1], tea.Header.Version, len(data))
	return nil
}

func cmdList(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	fs.Parse(args)

	files, err := openAssets(cfg)
	if err != nil {
		return err
	}
	defer files.Close()

	paths, err := files.List("")
	if err != nil {
		return err
	}

	pattern := ""
	if fs.NArg() > 0 {
		pattern = strings.ToLower(fs.Arg(0))
	}

	count := 0
	for _, p := range paths {
		if !matchPath(pattern, p) {
			continue
		}
		fmt.Println(p)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d files matched)\n", count)
	}
	return nil
}

func cmdExtract(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: teatool extract <path|pattern> [output_dir]")
	}
	outputDir := "."
	if len(args) > 1 {
		outputDir = args[1]
	}

	files, err := openAssets(cfg)
	if err != nil {
		return err
	}
	defer files.Close()

	targets := []string{args[0]}
	if strings.Contains(args[0], "*") {
		all, err := files.List("")
		if err != nil {
			return err
		}
		targets = targets[:0]
		for _, p := range all {
			if matchPath(strings.ToLower(args[0]), p) {
				targets = append(targets, p)
			}
		}
	}

	extracted := 0
	for _, p := range targets {
		data, err := files.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", p, err)
			continue
		}

		// Preserve directory structure
		outputPath := filepath.Join(outputDir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outputPath, err)
			continue
		}
		fmt.Printf("Extracted: %s (%d bytes)\n", outputPath, len(data))
		extracted++
	}

	if extracted == 0 {
		return fmt.Errorf("nothing extracted for %s", args[0])
	}
	return nil
}

// matchPath matches pattern against the base name as a glob, or anywhere
// in the path as a substring. An empty pattern matches everything.
func matchPath(pattern, p string) bool {
	if pattern == "" {
		return true
	}
	lower := strings.ToLower(p)
	if matched, _ := filepath.Match(pattern, filepath.Base(lower)); matched {
		return true
	}
	return strings.Contains(lower, pattern)
}
