package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// ChromedpDriver drives Chrome through chromedp.
// Element operations are expressed as page scripts so both drivers share one locator model.
type ChromedpDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// OpenChromedp starts a browser through the exec allocator and attaches to its first tab
func OpenChromedp(ctx context.Context, opts Options) (*ChromedpDriver, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.Bin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.Bin))
	}

	// The browser outlives ctx; it is bound to the driver and released by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and the tab; both stay bound to the context it is given.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &ChromedpDriver{ctx: browserCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

// run executes actions on the browser tab, bounded by the caller's deadline and cancellation
func (d *ChromedpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// eval evaluates a script that resolves an element and reports whether it was found
func (d *ChromedpDriver) eval(ctx context.Context, loc Locator, script string) error {
	var found bool
	if err := d.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoElement, loc)
	}
	return nil
}

func (d *ChromedpDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromedpDriver) ReadyState(ctx context.Context) (string, error) {
	var state string
	err := d.run(ctx, chromedp.Evaluate(`document.readyState`, &state))
	return state, err
}

func (d *ChromedpDriver) Info(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	err := d.run(ctx, chromedp.Title(&info.Title), chromedp.Location(&info.URL))
	return info, err
}

func (d *ChromedpDriver) State(ctx context.Context, loc Locator) (ElementState, error) {
	var state ElementState
	err := d.run(ctx, chromedp.Evaluate(stateJS(loc), &state))
	return state, err
}

func (d *ChromedpDriver) ScrollIntoView(ctx context.Context, loc Locator) error {
	return d.eval(ctx, loc, scrollJS(loc))
}

func (d *ChromedpDriver) Type(ctx context.Context, loc Locator, text string) error {
	query := chromedp.ByQuery
	sel := loc.CSS()
	if loc.By == ByXPath {
		query = chromedp.BySearch
		sel = loc.Value
	}
	return d.run(ctx, chromedp.SendKeys(sel, text, query))
}

func (d *ChromedpDriver) SetValue(ctx context.Context, loc Locator, value string) error {
	return d.eval(ctx, loc, setValueJS(loc, value))
}

func (d *ChromedpDriver) Click(ctx context.Context, loc Locator) error {
	return d.eval(ctx, loc, clickJS(loc))
}

func (d *ChromedpDriver) SelectOption(ctx context.Context, loc Locator, text string) error {
	if err := d.eval(ctx, loc, selectOptionJS(loc, text)); err != nil {
		return fmt.Errorf("failed to select %q: %w", text, err)
	}
	return nil
}

func (d *ChromedpDriver) Text(ctx context.Context, loc Locator) (string, error) {
	var text string
	err := d.run(ctx, chromedp.Evaluate(textJS(loc), &text))
	return text, err
}

func (d *ChromedpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 captures PNG.
	if err := d.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the tab and stops the browser process
func (d *ChromedpDriver) Close() error {
	err := chromedp.Cancel(d.ctx)
	d.cancel()
	d.allocCancel()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
