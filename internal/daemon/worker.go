package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"mcpt/internal/config"
	"mcpt/internal/retry"
	"mcpt/internal/secrets"
	"mcpt/internal/transport"
)

// EnvDaemonTimeout overrides the idle self-termination window, in seconds.
const EnvDaemonTimeout = "MCPT_DAEMON_TIMEOUT"

// IdleTimeout resolves the idle window from the environment.
func IdleTimeout() time.Duration {
	if v := os.Getenv(EnvDaemonTimeout); v != "" {
		var secs int
		if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return config.DefaultDaemonIdleTimeout
}

// Worker is the long-lived daemon process for one server. It owns exactly
// one MCP session from spawn to cleanup and serves framed requests on the
// per-server Unix socket until the idle timer fires.
type Worker struct {
	serverName string
	srv        *config.ServerConfig
	configPath string
	idle       time.Duration
	dir        string
	store      *secrets.Store
	logger     *zap.Logger

	conn *transport.Conn

	// The MCP client library is not assumed re-entrant; all session calls
	// are serialised behind callMu.
	callMu sync.Mutex

	idleTimer *time.Timer
	shutdown  chan struct{}
	once      sync.Once
}

// NewWorker builds a worker for the named server from the loaded catalogue.
func NewWorker(srv *config.ServerConfig, configPath string, store *secrets.Store, logger *zap.Logger) *Worker {
	return &Worker{
		serverName: srv.Name,
		srv:        srv,
		configPath: configPath,
		idle:       IdleTimeout(),
		dir:        SocketDir(),
		store:      store,
		logger:     logger,
		shutdown:   make(chan struct{}),
	}
}

// Run establishes the session, binds the socket, prints the readiness
// sentinel and serves until idle expiry or a termination signal. The exit
// status is 0 on clean shutdown, 1 when setup fails.
func (w *Worker) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	sockPath := SocketPath(w.dir, w.serverName)
	descPath := DescriptorPath(w.dir, w.serverName)

	// A previous worker may have crashed without removing its socket.
	_ = os.Remove(sockPath)

	desc := &Descriptor{
		PID:        os.Getpid(),
		ConfigHash: w.srv.Hash(),
		StartedAt:  time.Now(),
	}
	if err := WriteDescriptor(descPath, desc); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}

	// The daemon never drives a browser; when tokens are missing the spawn
	// fails and the CLI falls back to a direct, interactive connection.
	factory := transport.NewFactory(w.store, w.logger, true)

	connectCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	err := retry.Do(connectCtx, retry.Policy{Logger: w.logger}, func(ctx context.Context) error {
		conn, err := factory.Connect(ctx, w.srv)
		if err != nil {
			return err
		}
		w.conn = conn
		return nil
	})
	cancel()
	if err != nil {
		w.cleanup()
		return fmt.Errorf("connect to %s: %w", w.serverName, err)
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		w.cleanup()
		return fmt.Errorf("bind %s: %w", sockPath, err)
	}
	if err := os.Chmod(sockPath, 0o600); err != nil {
		w.logger.Warn("cannot restrict socket permissions", zap.Error(err))
	}

	// Unblock the spawner.
	fmt.Println(ReadySentinel)

	w.idleTimer = time.NewTimer(w.idle)
	go w.watchSignals()
	go w.watchConfig()
	go w.watchIdle()

	w.logger.Info("daemon serving",
		zap.String("server", w.serverName),
		zap.String("socket", sockPath),
		zap.Duration("idle_timeout", w.idle))

	go func() {
		<-w.shutdown
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-w.shutdown:
				w.cleanup()
				return nil
			default:
				w.logger.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		go w.serve(conn)
	}
}

// serve handles one connection: a single JSON request, one newline
// terminated response.
func (w *Worker) serve(conn net.Conn) {
	defer conn.Close()

	w.resetIdle()

	reader := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(config.DaemonSocketTimeout))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		w.logger.Debug("request read failed", zap.Error(err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		w.respond(conn, &Response{Success: false, Error: "malformed request: " + err.Error()})
		return
	}

	resp := w.handle(&req)
	w.respond(conn, resp)

	if req.Type == TypeClose {
		// Give the response a moment to flush before exiting.
		time.Sleep(config.DaemonCloseGrace)
		w.stop()
	}
}

func (w *Worker) handle(req *Request) *Response {
	resp := &Response{ID: req.ID}

	switch req.Type {
	case TypePing:
		resp.Success = true

	case TypeListTools:
		w.callMu.Lock()
		result, err := w.conn.Client().ListTools(context.Background(), mcp.ListToolsRequest{})
		w.callMu.Unlock()
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		data, err := json.Marshal(result.Tools)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Success = true
		resp.Data = data

	case TypeCallTool:
		callReq := mcp.CallToolRequest{}
		callReq.Params.Name = req.ToolName
		callReq.Params.Arguments = req.Args

		w.callMu.Lock()
		result, err := w.conn.Client().CallTool(context.Background(), callReq)
		w.callMu.Unlock()
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		data, err := json.Marshal(result)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Success = true
		resp.Data = data

	case TypeGetInstructions:
		data, err := json.Marshal(w.conn.Instructions())
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Success = true
		resp.Data = data

	case TypeClose:
		resp.Success = true

	default:
		resp.Error = fmt.Sprintf("unknown request type %q", req.Type)
	}
	return resp
}

func (w *Worker) respond(conn net.Conn, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		w.logger.Error("cannot marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	_ = conn.SetWriteDeadline(time.Now().Add(config.DaemonSocketTimeout))
	if _, err := conn.Write(data); err != nil {
		w.logger.Debug("response write failed", zap.Error(err))
	}
}

func (w *Worker) resetIdle() {
	if w.idleTimer == nil {
		return
	}
	if !w.idleTimer.Stop() {
		select {
		case <-w.idleTimer.C:
		default:
		}
	}
	w.idleTimer.Reset(w.idle)
}

func (w *Worker) watchIdle() {
	<-w.idleTimer.C
	w.logger.Info("idle timeout reached, shutting down",
		zap.String("server", w.serverName),
		zap.Duration("idle", w.idle))
	w.stop()
}

func (w *Worker) watchSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigs
	w.logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
	w.stop()
}

// watchConfig exits the worker when its server record changes or
// disappears. The client-side hash check would catch this on the next
// invocation anyway; watching shortens the window in which a stale
// session serves requests.
func (w *Worker) watchConfig() {
	if w.configPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Debug("config watcher unavailable", zap.Error(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.configPath); err != nil {
		w.logger.Debug("cannot watch config file", zap.Error(err))
		return
	}

	currentHash := w.srv.Hash()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			cfg, err := config.Load(config.LoadOptions{ExplicitPath: w.configPath, LaxEnv: true})
			if err != nil {
				w.logger.Debug("config reload failed, keeping session", zap.Error(err))
				continue
			}
			srv := cfg.Server(w.serverName)
			if srv == nil || srv.Hash() != currentHash {
				w.logger.Info("server record changed, shutting down",
					zap.String("server", w.serverName))
				w.stop()
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("config watcher error", zap.Error(err))
		case <-w.shutdown:
			return
		}
	}
}

func (w *Worker) stop() {
	w.once.Do(func() {
		close(w.shutdown)
	})
}

// cleanup closes the session and removes the socket and descriptor.
func (w *Worker) cleanup() {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	RemoveFiles(w.dir, w.serverName)
	w.logger.Info("daemon stopped", zap.String("server", w.serverName))
}

