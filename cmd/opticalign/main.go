// Command opticalign drives the stereo optical-alignment pipeline over a
// directory of image pairs — a stand-in for the external camera hardware —
// printing AlignmentResult records and periodic throughput stats. Its
// shape (flag-based config, context.WithCancel + os/signal shutdown) is
// the teacher's own cmd/calib_stereo/main.go idiom, simplified down to a
// single frame source instead of the teacher's pluggable source/destination
// framework, which this domain has no use for.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/obslog"
	"github.com/itohio/opticalign/internal/pipeline"
	"github.com/itohio/opticalign/internal/sessioncfg"
	"github.com/itohio/opticalign/internal/system"
)

func main() {
	configPath := flag.String("config", "session.yaml", "Path to the session configuration YAML file")
	statsInterval := flag.Duration("stats-interval", 5*time.Second, "How often to print pipeline performance stats")
	flag.Parse()

	if err := run(*configPath, *statsInterval); err != nil {
		fmt.Fprintf(os.Stderr, "opticalign: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, statsInterval time.Duration) error {
	cfg, err := sessioncfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading session config: %w", err)
	}

	framePairs, err := discoverFramePairs(cfg.FrameSourceDir)
	if err != nil {
		return fmt.Errorf("discovering frame source: %w", err)
	}
	obslog.Log.Info().Int("pairs", len(framePairs)).Str("dir", cfg.FrameSourceDir).Msg("discovered frame pairs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		obslog.Log.Info().Msg("shutdown signal received")
		cancel()
	}()

	th := cfg.ResolveThresholds()
	factory := func() (*system.AlignmentSystem, error) {
		return system.New(cfg.ImageSize(), cfg.Params.LeftIntrinsics, cfg.Params.RightIntrinsics,
			cfg.Params.StereoExtrinsics, cfg.Params.RectifyParams, th)
	}

	debugPath := ""
	if cfg.DebugOutputDir != "" {
		debugPath = filepath.Join(cfg.DebugOutputDir, "alignment_debug")
	}

	p, err := pipeline.New(ctx, factory, cfg.Params.RectifyMaps, debugPath)
	if err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				s := p.GetPerformanceStats()
				obslog.Log.Info().
					Float64("fps", s.FPS).
					Uint64("frames", s.TotalFrames).
					Uint64("dropped_a", s.DroppedA).
					Uint64("dropped_b", s.DroppedB).
					Uint64("dropped_c", s.DroppedC).
					Uint64("dropped_r", s.DroppedR).
					Msg("pipeline stats")
			}
		}
	}()

	go feedFrames(ctx, p, framePairs, cfg.ImageSize())

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := p.Shutdown(shutdownCtx)
			shutdownCancel()
			return err
		default:
		}

		result, ok := p.GetResultTimeout(200 * time.Millisecond)
		if !ok {
			continue
		}
		printResult(result)
	}
}

// framePair is one (left, right) image path pair discovered from the
// source directory, matched by a shared numeric/alphabetic stem with a
// "_left"/"_right" suffix.
type framePair struct {
	left, right string
}

func discoverFramePairs(dir string) ([]framePair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame source dir %s: %w", dir, err)
	}

	lefts := map[string]string{}
	rights := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		switch {
		case strings.HasSuffix(strings.TrimSuffix(name, ext), "_left"):
			stem := strings.TrimSuffix(strings.TrimSuffix(name, ext), "_left")
			lefts[stem] = filepath.Join(dir, name)
		case strings.HasSuffix(strings.TrimSuffix(name, ext), "_right"):
			stem := strings.TrimSuffix(strings.TrimSuffix(name, ext), "_right")
			rights[stem] = filepath.Join(dir, name)
		}
	}

	stems := make([]string, 0, len(lefts))
	for stem := range lefts {
		if _, ok := rights[stem]; ok {
			stems = append(stems, stem)
		}
	}
	sort.Strings(stems)

	pairs := make([]framePair, 0, len(stems))
	for _, stem := range stems {
		pairs = append(pairs, framePair{left: lefts[stem], right: rights[stem]})
	}
	return pairs, nil
}

func feedFrames(ctx context.Context, p *pipeline.Pipeline, pairs []framePair, size image.Point) {
	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		left := gocv.IMRead(pair.left, gocv.IMReadGrayScale)
		if left.Empty() {
			obslog.Log.Warn().Str("path", pair.left).Msg("failed to read left frame")
			left.Close()
			continue
		}
		right := gocv.IMRead(pair.right, gocv.IMReadGrayScale)
		if right.Empty() {
			obslog.Log.Warn().Str("path", pair.right).Msg("failed to read right frame")
			left.Close()
			right.Close()
			continue
		}

		if err := p.ProcessFrame(left, right); err != nil {
			obslog.Log.Warn().Err(err).Msg("submitting frame failed")
			return
		}
	}
}

func printResult(r pipeline.AlignmentResult) {
	fmt.Printf("frame=%d latency_ms=%.2f left_pass=%v right_pass=%v",
		r.FrameID, float64(r.ProcessingTimeNanos)/1e6, r.LeftPose.Pass, r.RightPose.Pass)
	if r.Alignment != nil {
		fmt.Printf(" rms=%.2f p95=%.2f max=%.2f align_pass=%v",
			r.Alignment.RMS, r.Alignment.P95, r.Alignment.MaxErr, r.Alignment.Pass)
	}
	if r.Centering != nil {
		fmt.Printf(" centered=%v", r.Centering.IsCentered)
	}
	fmt.Printf(" priority=%s\n", r.Adjustment.Priority)
}
