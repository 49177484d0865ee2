package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver drives Chrome through go-rod
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// OpenRod launches a browser and opens a blank page
func OpenRod(ctx context.Context, opts Options) (*RodDriver, error) {
	l := launcher.New()

	// Use CHROME_BIN if set (Docker environment)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	l = l.Headless(opts.Headless)

	// Additional Chrome flags for Docker compatibility
	l = l.Set("no-sandbox")
	l = l.Set("disable-gpu")
	l = l.Set("disable-dev-shm-usage")
	l = l.Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height))

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	err = page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return &RodDriver{launcher: l, browser: browser, page: page}, nil
}

func (d *RodDriver) element(ctx context.Context, loc Locator) (*rod.Element, error) {
	page := d.page.Context(ctx)

	var (
		els rod.Elements
		err error
	)
	if loc.By == ByXPath {
		els, err = page.ElementsX(loc.Value)
	} else {
		els, err = page.Elements(loc.CSS())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", loc, err)
	}
	if els.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, loc)
	}
	return els.First(), nil
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	return d.page.Context(ctx).Navigate(url)
}

func (d *RodDriver) ReadyState(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func (d *RodDriver) Info(ctx context.Context) (PageInfo, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return PageInfo{}, err
	}
	return PageInfo{Title: info.Title, URL: info.URL}, nil
}

func (d *RodDriver) State(ctx context.Context, loc Locator) (ElementState, error) {
	el, err := d.element(ctx, loc)
	if errors.Is(err, ErrNoElement) {
		return ElementState{}, nil
	}
	if err != nil {
		return ElementState{}, err
	}

	visible, err := el.Visible()
	if err != nil {
		return ElementState{}, err
	}
	res, err := el.Eval(`() => ({enabled: !this.disabled, checked: !!this.checked})`)
	if err != nil {
		return ElementState{}, err
	}

	return ElementState{
		Found:   true,
		Visible: visible,
		Enabled: res.Value.Get("enabled").Bool(),
		Checked: res.Value.Get("checked").Bool(),
	}, nil
}

func (d *RodDriver) ScrollIntoView(ctx context.Context, loc Locator) error {
	el, err := d.element(ctx, loc)
	if err != nil {
		return err
	}
	return el.ScrollIntoView()
}

func (d *RodDriver) Type(ctx context.Context, loc Locator, text string) error {
	el, err := d.element(ctx, loc)
	if err != nil {
		return err
	}
	return el.Input(text)
}

func (d *RodDriver) SetValue(ctx context.Context, loc Locator, value string) error {
	el, err := d.element(ctx, loc)
	if err != nil {
		return err
	}
	_, err = el.Eval(`v => { this.value = v }`, value)
	return err
}

func (d *RodDriver) Click(ctx context.Context, loc Locator) error {
	el, err := d.element(ctx, loc)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.click()`)
	return err
}

func (d *RodDriver) SelectOption(ctx context.Context, loc Locator, text string) error {
	el, err := d.element(ctx, loc)
	if err != nil {
		return err
	}
	// rod's text selector matches substrings, so "Sudan" would pick "South Sudan".
	if err := el.Select([]string{exactOptionPattern(text)}, true, rod.SelectorTypeRegex); err != nil {
		return fmt.Errorf("failed to select %q: %w", text, err)
	}
	return nil
}

// exactOptionPattern matches an option whose visible text is exactly text, ignoring surrounding whitespace
func exactOptionPattern(text string) string {
	return `^\s*` + regexp.QuoteMeta(text) + `\s*$`
}

func (d *RodDriver) Text(ctx context.Context, loc Locator) (string, error) {
	el, err := d.element(ctx, loc)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (d *RodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close closes the browser and removes the launcher's profile directory
func (d *RodDriver) Close() error {
	err := d.browser.Close()
	d.launcher.Kill()
	d.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
