package daemon

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"mcpt/internal/config"
)

// EnvNoDaemon disables the daemon path entirely.
const EnvNoDaemon = "MCPT_NO_DAEMON"

// Enabled reports whether the daemon path may be used.
func Enabled() bool {
	switch strings.ToLower(os.Getenv(EnvNoDaemon)) {
	case "", "false", "0", "no":
		return true
	}
	return false
}

// Client locates or spawns the worker for a server and verifies its
// freshness. Every failure on this path returns nil so the facade falls
// back to a direct connection; daemon errors are never fatal to the user
// operation.
type Client struct {
	dir        string
	configPath string
	logger     *zap.Logger
}

// NewClient returns a daemon client over the default socket directory.
// configPath is forwarded to spawned workers so they load the same
// catalogue the CLI did.
func NewClient(configPath string, logger *zap.Logger) *Client {
	return &Client{dir: SocketDir(), configPath: configPath, logger: logger}
}

// Session returns a live handle for the server, or nil when the caller
// must connect directly. A stale daemon (dead pid, changed config hash,
// missing socket) is killed and respawned.
func (c *Client) Session(ctx context.Context, srv *config.ServerConfig) *Handle {
	if !Enabled() {
		return nil
	}

	hash := srv.Hash()
	descPath := DescriptorPath(c.dir, srv.Name)
	sockPath := SocketPath(c.dir, srv.Name)

	if desc := ReadDescriptor(descPath); desc != nil {
		if c.isFresh(desc, hash, sockPath) {
			h := NewHandle(sockPath)
			if err := c.ping(ctx, h); err == nil {
				c.logger.Debug("reusing warm daemon",
					zap.String("server", srv.Name),
					zap.Int("pid", desc.PID))
				return h
			}
			c.logger.Debug("daemon socket not responding, respawning",
				zap.String("server", srv.Name))
		}
		c.invalidate(srv.Name, desc)
	}

	return c.spawn(ctx, srv, sockPath)
}

// isFresh checks the validity conjunction: pid alive, hash match, socket
// present. The hash is the sole staleness signal for config changes.
func (c *Client) isFresh(desc *Descriptor, currentHash, sockPath string) bool {
	alive, err := process.PidExists(int32(desc.PID))
	if err != nil || !alive {
		return false
	}
	if desc.ConfigHash != currentHash {
		c.logger.Debug("daemon config hash stale",
			zap.String("have", desc.ConfigHash),
			zap.String("want", currentHash))
		return false
	}
	if _, err := os.Stat(sockPath); err != nil {
		return false
	}
	return true
}

// invalidate kills a stale worker and removes its files.
func (c *Client) invalidate(server string, desc *Descriptor) {
	if alive, err := process.PidExists(int32(desc.PID)); err == nil && alive {
		c.logger.Debug("terminating stale daemon",
			zap.String("server", server),
			zap.Int("pid", desc.PID))
		if p, err := process.NewProcess(int32(desc.PID)); err == nil {
			if err := p.Terminate(); err != nil {
				_ = p.Kill()
			}
		}
	}
	RemoveFiles(c.dir, server)
}

// spawn starts a detached worker and waits for its readiness line. The
// worker is this same binary re-invoked with the hidden daemon subcommand.
func (c *Client) spawn(ctx context.Context, srv *config.ServerConfig, sockPath string) *Handle {
	exe, err := os.Executable()
	if err != nil {
		c.logger.Debug("cannot resolve own executable for daemon spawn", zap.Error(err))
		return nil
	}

	args := []string{"_daemon", srv.Name}
	if c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}

	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.logger.Debug("daemon stdout pipe failed", zap.Error(err))
		return nil
	}
	if err := cmd.Start(); err != nil {
		c.logger.Debug("daemon spawn failed", zap.Error(err))
		return nil
	}

	// The spawner only waits for DAEMON_READY; the worker outlives it.
	ready := make(chan bool, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if strings.TrimSpace(scanner.Text()) == ReadySentinel {
				ready <- true
				return
			}
		}
		ready <- false
	}()
	go func() {
		_ = cmd.Wait() // reap when the worker eventually exits
	}()

	select {
	case ok := <-ready:
		if !ok {
			c.logger.Debug("daemon exited before becoming ready",
				zap.String("server", srv.Name))
			c.abortSpawn(cmd, srv.Name)
			return nil
		}
	case <-time.After(config.DaemonSpawnTimeout):
		c.logger.Debug("daemon spawn timed out",
			zap.String("server", srv.Name),
			zap.Duration("timeout", config.DaemonSpawnTimeout))
		c.abortSpawn(cmd, srv.Name)
		return nil
	case <-ctx.Done():
		c.abortSpawn(cmd, srv.Name)
		return nil
	}

	h := NewHandle(sockPath)
	if err := c.ping(ctx, h); err != nil {
		c.logger.Debug("daemon ping after spawn failed",
			zap.String("server", srv.Name), zap.Error(err))
		c.abortSpawn(cmd, srv.Name)
		return nil
	}

	c.logger.Debug("daemon spawned",
		zap.String("server", srv.Name),
		zap.Int("pid", cmd.Process.Pid))
	return h
}

func (c *Client) abortSpawn(cmd *exec.Cmd, server string) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	RemoveFiles(c.dir, server)
}

func (c *Client) ping(ctx context.Context, h *Handle) error {
	pingCtx, cancel := context.WithTimeout(ctx, config.DaemonSocketTimeout)
	defer cancel()
	return h.Ping(pingCtx)
}

// Sweep removes descriptor/socket pairs whose owning process is gone.
// Run once at CLI startup; a crashed daemon leaves its files behind.
func (c *Client) Sweep() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".pid") {
			continue
		}
		server := strings.TrimSuffix(name, ".pid")
		desc := ReadDescriptor(DescriptorPath(c.dir, server))
		if desc == nil {
			RemoveFiles(c.dir, server)
			continue
		}
		if alive, err := process.PidExists(int32(desc.PID)); err == nil && !alive {
			c.logger.Debug("sweeping dead daemon files",
				zap.String("server", server),
				zap.Int("pid", desc.PID))
			RemoveFiles(c.dir, server)
		}
	}
}
