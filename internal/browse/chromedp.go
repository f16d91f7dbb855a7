// File: internal/browse/chromedp.go
// chromedp-backed implementation of the browsing capability. One Manager owns
// the exec allocator; each job gets its own browser context (a dedicated tab
// tree) so jobs never share cookies or DOM state.
package browse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// Manager handles the shared browser allocator. Initialization is deferred
// until the first browser is requested.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	initOnce    sync.Once
}

func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger.Named("browse")}
}

func (m *Manager) initialize() {
	m.initOnce.Do(func() {
		opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts, chromedp.Flag("headless", m.cfg.Headless))
		for _, arg := range m.cfg.Args {
			name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			if found {
				opts = append(opts, chromedp.Flag(name, value))
			} else {
				opts = append(opts, chromedp.Flag(name, true))
			}
		}
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Browser allocator initialized", zap.Bool("headless", m.cfg.Headless))
	})
}

// NewBrowser creates an isolated browser context for one job.
func (m *Manager) NewBrowser(ctx context.Context) (schemas.Browser, error) {
	m.initialize()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(m.allocCtx)

	var limiter *rate.Limiter
	if m.cfg.ActionsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.cfg.ActionsPerSecond), 1)
	}
	return &Browser{
		cfg:     m.cfg,
		logger:  m.logger,
		tabCtx:  tabCtx,
		cancel:  cancel,
		limiter: limiter,
	}, nil
}

// Shutdown tears down the allocator and every browser spawned from it.
func (m *Manager) Shutdown() {
	if m.allocCancel != nil {
		m.allocCancel()
	}
}

// Browser is one job's chromedp browser context.
type Browser struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	tabCtx  context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
}

var _ schemas.Browser = (*Browser)(nil)

func (b *Browser) Navigate(ctx context.Context, url string) (schemas.Page, error) {
	err := b.run(ctx, b.cfg.NavigationTimeout, "navigate",
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return &Page{browser: b, url: url, nodes: make(map[string]*cdp.Node)}, nil
}

func (b *Browser) Close(_ context.Context) error {
	b.cancel()
	return nil
}

// run executes chromedp actions against the tab context while honoring the
// caller's context and the given timeout. Deadline overruns surface as
// transient failures so the executor's retry policy applies.
func (b *Browser) run(ctx context.Context, timeout time.Duration, op string, actions ...chromedp.Action) error {
	runCtx := b.tabCtx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return ctx.Err()
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &schemas.TransientActionFailure{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Page is the live page context of the most recent navigation in a Browser.
type Page struct {
	browser *Browser
	url     string

	mu    sync.Mutex
	nodes map[string]*cdp.Node
}

var _ schemas.Page = (*Page)(nil)

func (p *Page) URL() string { return p.url }

func (p *Page) Query(ctx context.Context, strategy schemas.LocatorStrategy) ([]schemas.ElementHandle, error) {
	selector, by, err := chromedpSelector(strategy)
	if err != nil {
		return nil, err
	}

	var nodes []*cdp.Node
	err = p.browser.run(ctx, p.browser.cfg.ActionTimeout, "query "+strategy.String(),
		chromedp.Nodes(selector, &nodes, by, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	handles := make([]schemas.ElementHandle, len(nodes))
	for i, node := range nodes {
		ref := fmt.Sprintf("%s#%d@%d", strategy.String(), i, node.NodeID)
		p.nodes[ref] = node
		handles[i] = schemas.ElementHandle{Ref: ref, Strategy: strategy, Index: i}
	}
	return handles, nil
}

func (p *Page) Perform(ctx context.Context, action schemas.ActionKind, handle schemas.ElementHandle, value string) error {
	p.mu.Lock()
	node, ok := p.nodes[handle.Ref]
	p.mu.Unlock()
	if !ok {
		return &schemas.TransientActionFailure{
			Op:  string(action),
			Err: fmt.Errorf("stale element handle %q", handle.Ref),
		}
	}

	if p.browser.limiter != nil {
		if err := p.browser.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	nodePath := node.FullXPath()
	op := string(action) + " " + handle.Strategy.String()
	switch action {
	case schemas.ActionClick:
		return p.browser.run(ctx, p.browser.cfg.ActionTimeout, op,
			chromedp.Click(nodePath, chromedp.BySearch),
		)
	case schemas.ActionFill:
		return p.browser.run(ctx, p.browser.cfg.ActionTimeout, op,
			chromedp.SetValue(nodePath, "", chromedp.BySearch),
			chromedp.SendKeys(nodePath, value, chromedp.BySearch),
		)
	case schemas.ActionSelect:
		return p.browser.run(ctx, p.browser.cfg.ActionTimeout, op,
			chromedp.SetValue(nodePath, value, chromedp.BySearch),
		)
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}

func (p *Page) Extract(ctx context.Context, strategy schemas.LocatorStrategy) ([]map[string]string, error) {
	script, err := extractTableScript(strategy)
	if err != nil {
		return nil, err
	}
	var rows []map[string]string
	err = p.browser.run(ctx, p.browser.cfg.ActionTimeout, "extract "+strategy.String(),
		chromedp.Evaluate(script, &rows),
	)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	err := p.browser.run(ctx, p.browser.cfg.ActionTimeout, "content",
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

func (p *Page) Cookies(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := p.browser.run(ctx, p.browser.cfg.ActionTimeout, "cookies",
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				out[c.Name] = c.Value
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}
