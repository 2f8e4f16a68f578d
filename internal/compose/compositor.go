// Package compose paginates rendered document markup into PDF bytes by
// driving a headless browser.
package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// A4 in inches, with 20mm top/bottom and 15mm side margins.
const (
	paperWidthIn   = 8.27
	paperHeightIn  = 11.69
	marginTopIn    = 0.79
	marginBottomIn = 0.79
	marginSideIn   = 0.59
)

// assetSettleScript resolves when fonts and every image have loaded or
// errored, or after its own deadline. Combined with the compositor's
// context timeout this guarantees a page that never settles still
// produces output.
const assetSettleScript = `new Promise((resolve) => {
	const deadline = setTimeout(resolve, 10000);
	const images = Array.from(document.images).map((img) =>
		img.complete ? Promise.resolve() : new Promise((done) => {
			img.addEventListener('load', done);
			img.addEventListener('error', done);
		}));
	const fonts = (document.fonts && document.fonts.ready) ? document.fonts.ready : Promise.resolve();
	Promise.all([fonts, ...images]).then(() => {
		clearTimeout(deadline);
		resolve();
	});
})`

const headerTemplate = `<div style="font-size:8px; width:100%; padding:0 15mm; display:flex; justify-content:space-between; color:#666;">
	<span class="title"></span><span class="date"></span>
</div>`

const footerTemplate = `<div style="font-size:8px; width:100%; text-align:center; color:#666;">
	Page <span class="pageNumber"></span> of <span class="totalPages"></span>
</div>`

// Compositor turns document markup into PDF bytes. Browser instances are
// scoped to a single call; a bounded slot pool queues concurrent requests
// instead of launching an engine per caller.
type Compositor struct {
	engine  Engine
	timeout time.Duration
	slots   chan struct{}
}

func New(engine Engine, maxConcurrent int, timeout time.Duration) *Compositor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Compositor{
		engine:  engine,
		timeout: timeout,
		slots:   make(chan struct{}, maxConcurrent),
	}
}

// Compose paginates the markup to A4 with running header/footer bands.
// Every exit path releases the browser context; no partial output is
// ever returned.
func (c *Compositor) Compose(ctx context.Context, html string) ([]byte, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	execPath, err := c.engine.ExecPath(ctx)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdf []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(assetSettleScript, nil, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var printErr error
			pdf, _, printErr = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paperWidthIn).
				WithPaperHeight(paperHeightIn).
				WithMarginTop(marginTopIn).
				WithMarginBottom(marginBottomIn).
				WithMarginLeft(marginSideIn).
				WithMarginRight(marginSideIn).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(headerTemplate).
				WithFooterTemplate(footerTemplate).
				Do(ctx)
			return printErr
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("compose pdf: %w", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("compose pdf: empty output")
	}
	return pdf, nil
}

func (c *Compositor) acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Compositor) release() {
	<-c.slots
}

// percentEncodeForDataURL encodes markup for a data URL. Unlike
// url.QueryEscape it encodes spaces as %20, which data URLs require.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}
