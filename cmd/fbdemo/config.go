// SPDX-License-Identifier: Unlicense OR MIT

package main

import (
	"fmt"
	"image/color"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the demo configuration file.
type Config struct {
	Window WindowConfig `yaml:"window"`
	Colors ColorConfig  `yaml:"colors"`
}

type WindowConfig struct {
	Title     string `yaml:"title"`
	AppID     string `yaml:"app_id"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	QueueSize int    `yaml:"queue_size"`
}

type ColorConfig struct {
	Background Color `yaml:"background"`
	Foreground Color `yaml:"foreground"`
	// Cursor is the cursor color while the window has focus.
	Cursor Color `yaml:"cursor"`
}

// Color is an opaque color written as #rrggbb.
type Color color.RGBA

func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	var r, g, b uint8
	if n, err := fmt.Sscanf(s, "#%2x%2x%2x", &r, &g, &b); err != nil || n != 3 || len(s) != 7 {
		return fmt.Errorf("line %d: invalid color %q", value.Line, s)
	}
	*c = Color{R: r, G: g, B: b, A: 0xff}
	return nil
}

func (c Color) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), nil
}

func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA(c).RGBA()
}

func defaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:     "fbdemo",
			Width:     640,
			Height:    400,
			QueueSize: 256,
		},
		Colors: ColorConfig{
			Background: Color{R: 0x1d, G: 0x1f, B: 0x21, A: 0xff},
			Foreground: Color{R: 0xc5, G: 0xc8, B: 0xc6, A: 0xff},
			Cursor:     Color{R: 0xf0, G: 0xc6, B: 0x74, A: 0xff},
		},
	}
}

// Load reads the configuration at path on top of the defaults. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if w := cfg.Window; w.Width <= 0 || w.Height <= 0 {
		return nil, fmt.Errorf("%s: invalid window size %dx%d", path, w.Width, w.Height)
	}
	if cfg.Window.QueueSize < 0 {
		return nil, fmt.Errorf("%s: negative queue_size", path)
	}
	return cfg, nil
}
