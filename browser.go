package oddish

import (
	"fmt"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// BrowserConfig contains configuration options for opening rendered maps.
type BrowserConfig struct {
	Bin    string      // Chrome/Chromium binary path; empty lets the launcher find one
	Logger *zap.Logger // launch logging (default: zap.NewNop())
}

// BrowserOption is a functional option for configuring the browser launch.
type BrowserOption func(*BrowserConfig)

// WithBrowserBin sets an explicit browser binary path, e.g.
// "/opt/google/chrome/chrome" or the Windows Chrome install path.
func WithBrowserBin(path string) BrowserOption {
	return func(c *BrowserConfig) {
		c.Bin = path
	}
}

// WithBrowserLogger sets the logger used when launching the browser.
func WithBrowserLogger(l *zap.Logger) BrowserOption {
	return func(c *BrowserConfig) {
		c.Logger = l
	}
}

// OpenBrowser opens a local HTML file in a visible browser window. The
// browser is launched detached (leakless off) so the map outlives the
// toolkit process.
func OpenBrowser(path string, opts ...BrowserOption) error {
	cfg := &BrowserConfig{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving map path: %w", err)
	}
	fileURL := "file://" + abs

	l := launcher.New().Headless(false).Leakless(false)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connecting to browser: %w", err)
	}
	if _, err := browser.Page(proto.TargetCreateTarget{URL: fileURL}); err != nil {
		return fmt.Errorf("opening %s: %w", fileURL, err)
	}

	cfg.Logger.Debug("opened map in browser", zap.String("url", fileURL))
	return nil
}
