// Package browser owns the Chromium session a run drives: binary and
// profile management, launch flags, navigation, and the rod-backed
// implementation of the dom element model.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/roelfdiedericks/formclaw/internal/dom"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
	"github.com/roelfdiedericks/formclaw/internal/paths"
	"github.com/roelfdiedericks/formclaw/internal/poll"
)

// VisibleInterval is the polling interval of AwaitVisible.
const VisibleInterval = 250 * time.Millisecond

// Session is one browser process and the page a run drives. Create it with
// Launch and release it with Teardown on every exit path.
type Session struct {
	cfg       BrowserConfig
	launcher  *launcher.Launcher // nil when attached to an external browser
	browser   *rod.Browser
	page      *rod.Page
	scope     *pageScope
	downloads string
	timeout   time.Duration

	closeOnce sync.Once
	closeErr  error
}

// downloadPrefs are the Chromium preferences that make a PDF link save to
// dir without a prompt or the built-in viewer.
func downloadPrefs(dir string) (string, error) {
	prefs := map[string]any{
		"download": map[string]any{
			"default_directory":   dir,
			"prompt_for_download": false,
			"directory_upgrade":   true,
		},
		"plugins": map[string]any{
			"always_open_pdf_externally": true,
		},
	}
	b, err := json.Marshal(prefs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Launch starts (or attaches to) Chromium and opens the page the run drives.
// ctx bounds every later page operation; Teardown works after ctx ends.
func Launch(ctx context.Context, cfg BrowserConfig) (*Session, error) {
	start := time.Now()
	s := &Session{cfg: cfg, timeout: cfg.ResolveTimeout()}

	downloads := cfg.DownloadsDir
	if downloads == "" {
		d, err := paths.DefaultDownloadsDir()
		if err != nil {
			return nil, err
		}
		downloads = d
	}
	downloads, err := filepath.Abs(downloads)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve downloads directory: %w", err)
	}
	if err := paths.EnsureDir(downloads); err != nil {
		return nil, err
	}
	s.downloads = downloads

	if cfg.ControlURL != "" {
		L_info("browser: attaching to running browser", "controlURL", cfg.ControlURL)
		s.browser = rod.New().ControlURL(cfg.ControlURL)
		if err := s.browser.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to browser at %s: %w", cfg.ControlURL, err)
		}
	} else if err := s.launch(); err != nil {
		return nil, err
	}

	// rod defaults to a laptop viewport; "clear" lets the page fill the window.
	s.browser.DefaultDevice(cfg.ResolveDevice())

	err = proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: downloads,
	}.Call(s.browser)
	if err != nil {
		L_warn("browser: could not set download behavior, relying on profile preferences", "error", err)
	}

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		s.Teardown()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page.Context(ctx)
	s.scope = newPageScope(s.page, s.timeout)

	L_elapsed(start, "browser: session ready",
		"headless", cfg.Headless,
		"stealth", cfg.Stealth,
		"downloads", downloads,
	)
	return s, nil
}

// launch resolves the binary and profile and starts a local Chromium.
func (s *Session) launch() error {
	base, err := paths.BaseDir()
	if err != nil {
		return err
	}

	bin, err := NewDownloader(s.cfg.ResolveBinDir(base)).Resolve(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to ensure browser: %w", err)
	}

	profileDir, err := NewProfileManager(s.cfg.ResolveProfilesDir(base)).EnsureProfile(s.cfg.Profile)
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}

	prefs, err := downloadPrefs(s.downloads)
	if err != nil {
		return fmt.Errorf("failed to encode browser preferences: %w", err)
	}

	L_debug("browser: launching", "bin", bin, "profileDir", profileDir, "headless", s.cfg.Headless)

	l := launcher.New().
		Bin(bin).
		UserDataDir(profileDir).
		Headless(s.cfg.Headless).
		Preferences(prefs).
		Set("disable-dev-shm-usage") // For Docker/limited memory

	// Headed Chrome opens a tiny window by default; use a desktop layout.
	if !s.cfg.Headless {
		l = l.Set("window-size", "1920,1080").
			Set("start-maximized")
	}
	if s.cfg.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}
	if s.cfg.NoSandbox {
		l = l.Set("no-sandbox")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	s.launcher = l

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	L_info("browser: launched", "profile", s.cfg.Profile, "controlURL", controlURL)
	return nil
}

// Navigate loads url in the root document and waits briefly for it to
// settle. The scope is reset to the root document.
func (s *Session) Navigate(ctx context.Context, url string) error {
	start := time.Now()

	if err := ValidateURLSafety(url, s.cfg.AllowPrivateNetwork); err != nil {
		return err
	}
	s.scope.Root()

	L_debug("browser: navigating", "url", url)

	page := s.page.Context(ctx).Timeout(s.timeout)
	defer page.CancelTimeout()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	startWait := time.Now()
	if err := page.WaitLoad(); err != nil {
		// The page may still be usable; readiness is checked by the caller.
		L_warn("browser: WaitLoad timeout", "url", url, "took", time.Since(startWait))
	}

	// 500ms without activity, max 3s: catches post-load rendering without
	// blocking on a single page app that never goes idle.
	stable := s.page.Context(ctx).Timeout(3 * time.Second)
	if err := stable.WaitStable(500 * time.Millisecond); err != nil {
		L_debug("browser: stability wait timeout (normal for SPAs)", "url", url)
	}
	stable.CancelTimeout()

	L_elapsed(start, "browser: navigation complete", "url", url)
	return nil
}

// AwaitVisible polls the current scope until an element matching loc is
// visible. It returns an error wrapping dom.ErrNotFound when timeout elapses;
// other errors come only from ctx.
func (s *Session) AwaitVisible(ctx context.Context, loc dom.Locator, timeout time.Duration) (dom.Element, error) {
	var found dom.Element
	err := poll.Until(ctx, VisibleInterval, timeout, func() (bool, error) {
		el, err := s.scope.Find(loc)
		if err != nil {
			if !errors.Is(err, dom.ErrNotFound) {
				L_trace("browser: lookup failed while waiting", "locator", loc.String(), "error", err)
			}
			return false, nil
		}
		visible, err := el.Visible()
		if err != nil || !visible {
			return false, nil
		}
		found = el
		return true, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return nil, fmt.Errorf("%s not visible after %v: %w", loc, timeout, dom.ErrNotFound)
		}
		return nil, err
	}
	return found, nil
}

// Scope returns the frame-aware scope lookups run against.
func (s *Session) Scope() dom.Scope {
	return s.scope
}

// DownloadDir returns the absolute directory the browser saves files to.
func (s *Session) DownloadDir() string {
	return s.downloads
}

// Timeout returns the default operation timeout.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

// Teardown releases the browser. It runs once; later calls return the first
// call's result. An attached external browser only loses the page we opened.
func (s *Session) Teardown() error {
	s.closeOnce.Do(func() {
		start := time.Now()
		if s.browser == nil {
			return
		}
		if s.launcher == nil {
			if s.page != nil {
				// The run's context may be cancelled already; close with a fresh one.
				s.closeErr = s.page.Context(context.Background()).Close()
			}
			L_debug("browser: detached from external browser")
			return
		}
		if err := s.browser.Close(); err != nil {
			L_warn("browser: close failed, killing process", "error", err)
			s.closeErr = err
			s.launcher.Kill()
		}
		L_elapsed(start, "browser: closed")
	})
	return s.closeErr
}
