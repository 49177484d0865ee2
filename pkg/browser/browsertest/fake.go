// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
)

// Element is a fake DOM element
type Element struct {
	Visible  bool
	Disabled bool
	Checked  bool
	Value    string
	Text     string
	Options  []string
	Selected string

	// OnClick runs after the click has been applied
	OnClick func(d *Driver)
	// Toggle makes clicks flip Checked, like a checkbox or radio
	Toggle bool
}

// Call records one driver invocation
type Call struct {
	Method  string
	Locator browser.Locator
	Arg     string
}

// Driver is a scripted fake page. Zero values behave like an empty, loaded page.
type Driver struct {
	mu sync.Mutex

	Title string
	URL   string
	// ReadyStates are returned in order; the last one repeats
	ReadyStates []string
	// NavigateTo overrides the URL reported after Navigate
	NavigateTo string

	Elements map[browser.Locator]*Element
	PNG      []byte

	NavigateErr   error
	ScreenshotErr error
	CloseErr      error

	Calls  []Call
	Closed int
	ready  int
}

// New returns a fake with a loaded page and a small PNG payload
func New() *Driver {
	return &Driver{
		ReadyStates: []string{"complete"},
		Elements:    make(map[browser.Locator]*Element),
		PNG:         []byte("\x89PNG\r\n\x1a\nfake"),
	}
}

// Add registers an element under loc and returns it
func (d *Driver) Add(loc browser.Locator, el *Element) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Elements == nil {
		d.Elements = make(map[browser.Locator]*Element)
	}
	d.Elements[loc] = el
	return el
}

// Element returns the element registered under loc
func (d *Driver) Element(loc browser.Locator) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Elements[loc]
}

// Count returns how many times method was called on loc
func (d *Driver) Count(method string, loc browser.Locator) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Calls {
		if c.Method == method && c.Locator == loc {
			n++
		}
	}
	return n
}

func (d *Driver) record(method string, loc browser.Locator, arg string) {
	d.Calls = append(d.Calls, Call{Method: method, Locator: loc, Arg: arg})
}

func (d *Driver) lookup(loc browser.Locator) (*Element, error) {
	el, ok := d.Elements[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoElement, loc)
	}
	return el, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Navigate", browser.Locator{}, url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.URL = url
	if d.NavigateTo != "" {
		d.URL = d.NavigateTo
	}
	d.ready = 0
	return nil
}

func (d *Driver) ReadyState(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.ReadyStates) == 0 {
		return "complete", nil
	}
	i := d.ready
	if i >= len(d.ReadyStates) {
		i = len(d.ReadyStates) - 1
	}
	d.ready++
	return d.ReadyStates[i], nil
}

func (d *Driver) Info(ctx context.Context) (browser.PageInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return browser.PageInfo{Title: d.Title, URL: d.URL}, nil
}

func (d *Driver) State(ctx context.Context, loc browser.Locator) (browser.ElementState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.Elements[loc]
	if !ok {
		return browser.ElementState{}, nil
	}
	return browser.ElementState{
		Found:   true,
		Visible: el.Visible,
		Enabled: !el.Disabled,
		Checked: el.Checked,
	}, nil
}

func (d *Driver) ScrollIntoView(ctx context.Context, loc browser.Locator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ScrollIntoView", loc, "")
	_, err := d.lookup(loc)
	return err
}

func (d *Driver) Type(ctx context.Context, loc browser.Locator, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Type", loc, text)
	el, err := d.lookup(loc)
	if err != nil {
		return err
	}
	el.Value += text
	return nil
}

func (d *Driver) SetValue(ctx context.Context, loc browser.Locator, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetValue", loc, value)
	el, err := d.lookup(loc)
	if err != nil {
		return err
	}
	el.Value = value
	return nil
}

func (d *Driver) Click(ctx context.Context, loc browser.Locator) error {
	d.mu.Lock()
	d.record("Click", loc, "")
	el, err := d.lookup(loc)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if el.Toggle {
		el.Checked = !el.Checked
	}
	hook := el.OnClick
	d.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *Driver) SelectOption(ctx context.Context, loc browser.Locator, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SelectOption", loc, text)
	el, err := d.lookup(loc)
	if err != nil {
		return err
	}
	for _, opt := range el.Options {
		if opt == text {
			el.Selected = text
			return nil
		}
	}
	return fmt.Errorf("option %q not found in %s", text, loc)
}

func (d *Driver) Text(ctx context.Context, loc browser.Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(loc)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Screenshot", browser.Locator{}, "")
	if d.ScreenshotErr != nil {
		return nil, d.ScreenshotErr
	}
	return d.PNG, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed++
	return d.CloseErr
}

var _ browser.Driver = (*Driver)(nil)
