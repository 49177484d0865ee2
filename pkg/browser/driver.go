// Package browser defines the capability set the walkthrough needs from a
// browser automation driver and provides go-rod and chromedp implementations.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Strategy selects how a Locator value is interpreted
type Strategy string

const (
	ByID    Strategy = "id"
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// Locator identifies a single element on the page
type Locator struct {
	By    Strategy `json:"by"`
	Value string   `json:"value"`
}

// ID locates an element by its id attribute
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// CSS locates an element by CSS selector
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

// XPath locates an element by XPath expression
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }

// CSS returns the CSS selector form of ID and CSS locators
func (l Locator) CSS() string {
	if l.By == ByID {
		return "[id=" + strconv.Quote(l.Value) + "]"
	}
	return l.Value
}

func (l Locator) String() string {
	return string(l.By) + "=" + l.Value
}

// ElementState is a non-blocking snapshot of an element
type ElementState struct {
	Found   bool `json:"found"`
	Visible bool `json:"visible"`
	Enabled bool `json:"enabled"`
	Checked bool `json:"checked"`
}

// Interactable reports whether the element can receive a click or keystrokes
func (s ElementState) Interactable() bool {
	return s.Found && s.Visible && s.Enabled
}

// PageInfo describes the current document
type PageInfo struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ErrNoElement is returned by element operations when the locator resolves to nothing
var ErrNoElement = errors.New("no element matches locator")

// Driver is the set of browser operations the walkthrough relies on.
// Element operations act on the first match and never wait; callers poll State.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	ReadyState(ctx context.Context) (string, error)
	Info(ctx context.Context) (PageInfo, error)

	State(ctx context.Context, loc Locator) (ElementState, error)
	ScrollIntoView(ctx context.Context, loc Locator) error
	Type(ctx context.Context, loc Locator, text string) error
	SetValue(ctx context.Context, loc Locator, value string) error
	Click(ctx context.Context, loc Locator) error
	SelectOption(ctx context.Context, loc Locator, text string) error
	Text(ctx context.Context, loc Locator) (string, error)

	// Screenshot captures the full page as PNG
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Kind names a driver implementation
type Kind string

const (
	KindRod      Kind = "rod"
	KindChromedp Kind = "chromedp"
)

// Options configures how the browser is launched
type Options struct {
	Kind     Kind   `json:"kind"`
	Headless bool   `json:"headless"`
	Bin      string `json:"bin,omitempty"` // Chrome binary, empty to auto-detect
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// DefaultOptions returns headless rod with a maximised desktop window
func DefaultOptions() Options {
	return Options{
		Kind:     KindRod,
		Headless: true,
		Width:    1920,
		Height:   1080,
	}
}

// Open launches a browser with the driver named by opts.Kind
func Open(ctx context.Context, opts Options) (Driver, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}

	switch Kind(strings.ToLower(string(opts.Kind))) {
	case KindRod, "":
		return OpenRod(ctx, opts)
	case KindChromedp:
		return OpenChromedp(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s", opts.Kind)
	}
}
