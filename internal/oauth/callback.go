package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpt/internal/config"
)

// CallbackResult is what the listener hands back once the browser returns.
type CallbackResult struct {
	Code  string
	State string
	Err   error
}

// Listener is the localhost HTTP server receiving the authorization
// redirect. One instance per flow; Cleanup is idempotent and also runs
// automatically on resolve, reject and timeout.
type Listener struct {
	srv    *http.Server
	port   int
	done   chan CallbackResult
	once   sync.Once
	logger *zap.Logger
}

// StartListener binds the first port from the fallback list and begins
// serving. Port 0 asks the OS for an ephemeral port; the actual bound port
// is reported by Port().
func StartListener(ports []int, logger *zap.Logger) (*Listener, error) {
	var (
		ln      net.Listener
		lastErr error
	)
	for _, port := range ports {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			break
		}
		lastErr = err
		logger.Debug("callback port unavailable, trying next",
			zap.Int("port", port), zap.Error(err))
		ln = nil
	}
	if ln == nil {
		return nil, fmt.Errorf("no callback port available: %w", lastErr)
	}

	l := &Listener{
		port:   ln.Addr().(*net.TCPAddr).Port,
		done:   make(chan CallbackResult, 1),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", l.handleCallback)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Debug("callback listener stopped", zap.Error(err))
		}
	}()

	logger.Debug("callback listener ready", zap.Int("port", l.port))
	return l, nil
}

// Port returns the effective bound port.
func (l *Listener) Port() int {
	return l.port
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		desc := q.Get("error_description")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, errorPage, errCode, desc)
		l.resolve(CallbackResult{Err: fmt.Errorf("authorization server returned %s: %s", errCode, desc)})
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code parameter", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, successPage)
	l.resolve(CallbackResult{Code: code, State: q.Get("state")})
}

func (l *Listener) resolve(res CallbackResult) {
	l.once.Do(func() {
		l.done <- res
		// Shut down after the response body has been flushed.
		go func() {
			time.Sleep(250 * time.Millisecond)
			l.shutdown()
		}()
	})
}

// Wait blocks until the redirect arrives, the timeout elapses, or ctx is
// cancelled. The listener is torn down in every case.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (CallbackResult, error) {
	if timeout <= 0 {
		timeout = config.CallbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-l.done:
		if !ok {
			return CallbackResult{}, fmt.Errorf("callback listener was closed before the redirect arrived")
		}
		if res.Err != nil {
			return res, res.Err
		}
		return res, nil
	case <-timer.C:
		l.Cleanup()
		return CallbackResult{}, fmt.Errorf("timed out after %s waiting for the authorization callback", timeout)
	case <-ctx.Done():
		l.Cleanup()
		return CallbackResult{}, ctx.Err()
	}
}

// Cleanup tears the listener down. Safe to call more than once.
func (l *Listener) Cleanup() {
	l.once.Do(func() {
		close(l.done)
	})
	l.shutdown()
}

func (l *Listener) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), config.CallbackShutdownTimeout)
	defer cancel()
	_ = l.srv.Shutdown(ctx)
}

const successPage = `<!DOCTYPE html>
<html><head><title>Authorization complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em">
<h1>Authorization complete</h1>
<p>You can close this window and return to the terminal.</p>
</body></html>`

const errorPage = `<!DOCTYPE html>
<html><head><title>Authorization failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em">
<h1>Authorization failed</h1>
<p>%s: %s</p>
<p>Return to the terminal for details.</p>
</body></html>`
