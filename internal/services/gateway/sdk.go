package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const maxSDKBytes = 4 << 20

// SDKLoader fetches the embedded-checkout SDK script once per process and
// keeps it for every later checkout. A failed fetch leaves the loader
// unloaded so the next checkout tries again.
type SDKLoader struct {
	url string
	hc  *http.Client

	loaded atomic.Bool
	mu     sync.Mutex
	script []byte
}

func NewSDKLoader(url string, hc *http.Client) *SDKLoader {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &SDKLoader{url: url, hc: hc}
}

func (l *SDKLoader) Loaded() bool { return l.loaded.Load() }

// Ensure loads the SDK unless it is already loaded.
func (l *SDKLoader) Ensure(ctx context.Context) error {
	if l.loaded.Load() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded.Load() {
		return nil
	}

	script, err := l.fetch(ctx)
	if err != nil {
		return err
	}
	l.script = script
	l.loaded.Store(true)
	return nil
}

// Script returns the loaded SDK, or false when it has not been loaded.
func (l *SDKLoader) Script() ([]byte, bool) {
	if !l.loaded.Load() {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.script, true
}

func (l *SDKLoader) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("sdk: http.NewReq: %w", err)
	}

	resp, err := l.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sdk: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sdk: resp.StatusCode: %d", resp.StatusCode)
	}

	script, err := io.ReadAll(io.LimitReader(resp.Body, maxSDKBytes))
	if err != nil {
		return nil, fmt.Errorf("sdk: read body: %w", err)
	}
	if len(script) == 0 {
		return nil, errors.New("sdk: empty script")
	}
	return script, nil
}
