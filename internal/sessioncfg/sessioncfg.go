// Package sessioncfg loads the YAML session configuration consumed by
// cmd/opticalign: image geometry, calibration file paths, optional queue
// overrides, thresholds, and the debug-output directory. It follows the
// same load idiom as internal/params (gopkg.in/yaml.v3,
// model.ErrInitialization on failure) so a session fails fast with one
// unambiguous error rather than partially starting.
package sessioncfg

import (
	"fmt"
	"image"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/itohio/opticalign/internal/model"
)

// ParamPaths collects the calibration parameter files an AlignmentSystem
// needs to start.
type ParamPaths struct {
	LeftIntrinsics  string `yaml:"left_intrinsics"`
	RightIntrinsics string `yaml:"right_intrinsics"`
	StereoExtrinsics string `yaml:"stereo_extrinsics"`
	RectifyParams   string `yaml:"rectify_params"`
	RectifyMaps     string `yaml:"rectify_maps"`
}

// QueueOverrides holds per-queue buffer sizes read from the session file.
// They are parsed only: pipeline.New does not take them, and the channel
// buffers always use the sizes from pipeline.QueueCapacities.
type QueueOverrides struct {
	QueueA int `yaml:"queue_a"`
	QueueB int `yaml:"queue_b"`
	QueueC int `yaml:"queue_c"`
	QueueR int `yaml:"queue_r"`
}

// Config is the full session configuration file.
type Config struct {
	ImageWidth  int    `yaml:"image_width"`
	ImageHeight int    `yaml:"image_height"`

	Params ParamPaths `yaml:"params"`

	Queues QueueOverrides `yaml:"queues"`

	Thresholds *ThresholdsOverride `yaml:"thresholds"`

	DebugOutputDir string `yaml:"debug_output_dir"`
	FrameSourceDir string `yaml:"frame_source_dir"`
}

// ThresholdsOverride mirrors the scalar fields of model.Thresholds with
// pointer semantics so a session config can override a subset of the
// canonical values without restating all of them. ExpectedTopRight and
// ExpectedBottomLeft have no override and always keep their defaults.
type ThresholdsOverride struct {
	RollDeg            *float32 `yaml:"roll_deg"`
	PitchYawDeg        *float32 `yaml:"pitch_yaw_deg"`
	RMSPx              *float32 `yaml:"rms_px"`
	P95Px              *float32 `yaml:"p95_px"`
	MaxErrPx           *float32 `yaml:"max_err_px"`
	CenteringTolerance *float32 `yaml:"centering_tolerance_px"`
	MinAreaPx2         *float32 `yaml:"min_area_px2"`
	MaxAreaPx2         *float32 `yaml:"max_area_px2"`
	SafeCap            *int     `yaml:"safe_cap"`
}

// Load reads a session config file, validating the image dimensions and
// that every calibration parameter path is present (paths are not opened
// here — AlignmentSystem construction does that and reports which file
// failed).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading session config %s: %v", model.ErrInitialization, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing session config %s: %v", model.ErrInitialization, path, err)
	}

	if cfg.ImageWidth <= 0 || cfg.ImageHeight <= 0 {
		return Config{}, fmt.Errorf("%w: session config %s: image_width/image_height must be positive", model.ErrInitialization, path)
	}
	for name, p := range map[string]string{
		"left_intrinsics": cfg.Params.LeftIntrinsics, "right_intrinsics": cfg.Params.RightIntrinsics,
		"stereo_extrinsics": cfg.Params.StereoExtrinsics, "rectify_params": cfg.Params.RectifyParams,
		"rectify_maps": cfg.Params.RectifyMaps,
	} {
		if p == "" {
			return Config{}, fmt.Errorf("%w: session config %s: params.%s is required", model.ErrInitialization, path, name)
		}
	}

	return cfg, nil
}

// ImageSize returns the session's configured frame dimensions.
func (c Config) ImageSize() image.Point {
	return image.Pt(c.ImageWidth, c.ImageHeight)
}

// ResolveThresholds applies any overrides in the config on top of the
// canonical defaults.
func (c Config) ResolveThresholds() model.Thresholds {
	th := model.DefaultThresholds()
	o := c.Thresholds
	if o == nil {
		return th
	}
	if o.RollDeg != nil {
		th.RollDeg = *o.RollDeg
	}
	if o.PitchYawDeg != nil {
		th.PitchYawDeg = *o.PitchYawDeg
	}
	if o.RMSPx != nil {
		th.RMSPx = *o.RMSPx
	}
	if o.P95Px != nil {
		th.P95Px = *o.P95Px
	}
	if o.MaxErrPx != nil {
		th.MaxErrPx = *o.MaxErrPx
	}
	if o.CenteringTolerance != nil {
		th.CenteringTolerance = *o.CenteringTolerance
	}
	if o.MinAreaPx2 != nil {
		th.MinAreaPx2 = *o.MinAreaPx2
	}
	if o.MaxAreaPx2 != nil {
		th.MaxAreaPx2 = *o.MaxAreaPx2
	}
	if o.SafeCap != nil {
		th.SafeCap = *o.SafeCap
	}
	return th
}
