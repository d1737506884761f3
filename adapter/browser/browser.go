// Package browser drives a Chrome instance over the devtools protocol.
// The adapter either attaches to a remote debugger or launches a local
// headless browser, one tab per execution.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/model"
)

var _ adapter.PlatformAdapter = new(browserAdapter)

type browserAdapter struct {
	remoteURL string
	ctx       context.Context
	cancels   []context.CancelFunc
}

func New(remoteURL string) adapter.Factory {
	return func() (adapter.PlatformAdapter, error) {
		return &browserAdapter{remoteURL: remoteURL}, nil
	}
}

func (b *browserAdapter) Initialize(ctx context.Context) error {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if b.remoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), b.remoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.NoFirstRun,
		)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	b.cancels = []context.CancelFunc{cancelTab, cancelAlloc}
	b.ctx = tabCtx

	// Starts the browser process / attaches the session.
	if err := chromedp.Run(tabCtx); err != nil {
		b.Close()
		return fmt.Errorf("browser: session start: %w", err)
	}
	return nil
}

func (b *browserAdapter) Dispatch(ctx context.Context, action model.Action) (*model.ActionResult, error) {
	runCtx, cancel := mergeDeadline(b.ctx, ctx)
	defer cancel()

	sel := action.Target.Selector
	switch action.Kind {
	case model.KIND_NAVIGATE:
		url := action.Target.Url
		if url == "" {
			url = action.Payload
		}
		if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
			return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
		}
	case model.KIND_BROWSER_CLICK:
		if err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("browser: click %s: %w", sel, err)
		}
	case model.KIND_BROWSER_TYPE:
		if err := chromedp.Run(runCtx, chromedp.SendKeys(sel, action.Payload, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("browser: type into %s: %w", sel, err)
		}
	case model.KIND_BROWSER_FILL, model.KIND_BROWSER_SELECT:
		if err := chromedp.Run(runCtx, chromedp.SetValue(sel, action.Payload, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("browser: set value on %s: %w", sel, err)
		}
	case model.KIND_BROWSER_EXTRACT:
		var text string
		if err := chromedp.Run(runCtx, chromedp.Text(sel, &text, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("browser: extract %s: %w", sel, err)
		}
		return &model.ActionResult{Success: true, Output: text}, nil
	case model.KIND_BROWSER_WAIT:
		if err := chromedp.Run(runCtx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("browser: wait for %s: %w", sel, err)
		}
	default:
		return nil, fmt.Errorf("browser: unsupported action kind %s", action.Kind)
	}
	return &model.ActionResult{Success: true}, nil
}

func (b *browserAdapter) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := mergeDeadline(b.ctx, ctx)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return buf, nil
}

func (b *browserAdapter) Close() error {
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	return nil
}

// mergeDeadline applies the caller's deadline to the tab context. chromedp
// actions must run on the tab context, so the per-action timeout cannot be
// passed straight through.
func mergeDeadline(tabCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := callCtx.Deadline(); ok {
		return context.WithDeadline(tabCtx, deadline)
	}
	return context.WithCancel(tabCtx)
}
