// CLAUDE:SUMMARY Manages the Chrome process for a run: local launch or remote connect, Xvfb for headful, one incognito session per scenario.
// Package chrome drives a real Chrome through Rod. A Manager owns the browser
// process; each scenario gets its own Session in a fresh incognito context so
// cookies and storage never leak between concurrently running scenarios.
package chrome

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// BaseURL is the portal root; Session.Goto resolves paths against it.
	BaseURL string

	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin overrides the Chrome binary used by the launcher.
	Bin string

	// Headful runs a visible browser on an Xvfb display.
	Headful bool

	// XvfbDisplay for headful mode. Empty picks the first free display from :99.
	XvfbDisplay string

	// XvfbScreen is the Xvfb screen geometry. Default: "1920x1080x24".
	XvfbScreen string

	// Stealth opens sessions through go-rod/stealth, for portals that
	// fingerprint automation.
	Stealth bool

	// ResourceBlocking lists resource types to block (images, fonts, media).
	// Stylesheets are never blocked: computed styles are under test.
	ResourceBlocking []string

	// Settle is how long the DOM must stay unchanged after a click or key
	// press before the next step runs. Default: 300ms.
	Settle time.Duration

	// NavigationTimeout bounds Goto when the caller's context has no deadline.
	// Default: 30s.
	NavigationTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbScreen == "" {
		c.XvfbScreen = "1920x1080x24"
	}
	if c.Settle <= 0 {
		c.Settle = 300 * time.Millisecond
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages the Chrome lifecycle for one run.
type Manager struct {
	cfg     Config
	base    *url.URL
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	display string
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) (*Manager, error) {
	cfg.defaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("chrome: invalid base URL %q", cfg.BaseURL)
	}
	return &Manager{cfg: cfg, base: base}, nil
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("chrome: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return err
	}
	m.browser = b
	return nil
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// NewSession opens an isolated incognito context with a single page.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("chrome: no active browser")
	}

	inc, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("chrome: incognito context: %w", err)
	}

	var page *rod.Page
	if m.cfg.Stealth {
		page, err = stealth.Page(inc)
	} else {
		page, err = inc.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		inc.Close()
		return nil, fmt.Errorf("chrome: create page: %w", err)
	}

	s := &Session{
		page:    page,
		context: inc,
		base:    m.base,
		cfg:     m.cfg,
		logger:  m.cfg.Logger,
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		router, err := applyResourceBlocking(page, m.cfg.ResourceBlocking, m.cfg.Logger)
		if err != nil {
			m.cfg.Logger.Warn("chrome: resource blocking failed", "error", err)
		}
		s.router = router
	}

	if err := (proto.AccessibilityEnable{}).Call(page.Context(ctx)); err != nil {
		s.Close()
		return nil, fmt.Errorf("chrome: enable accessibility domain: %w", err)
	}
	return s, nil
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Headful && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(ctx); err != nil {
			return nil, fmt.Errorf("chrome: xvfb: %w", err)
		}
	}

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("chrome: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}

		if m.cfg.Headful {
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+m.display)...)
		} else {
			l = l.Headless(true)
		}
		if m.cfg.Stealth {
			l = l.Set("disable-blink-features", "AutomationControlled")
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("chrome: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("chrome: launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("chrome: connect: %w", err)
	}

	// AAT environments serve internal certificates.
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("chrome: ignore cert errors failed", "error", err)
	}

	return b, nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}
