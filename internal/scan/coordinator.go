package scan

import (
	"context"
	"sort"
	"sync"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/roster"
)

// Refresher is the part of the file watcher the coordinator drives.
type Refresher interface {
	Refresh(dirs []string)
}

// Coordinator keeps a cross-agent instance in step with its peers. Before
// every cycle it relists the agents directory, logs peers that came or
// went, and points the file watcher at the instance's current watch list.
type Coordinator struct {
	cfg     agent.Config
	watcher Refresher

	mu    sync.Mutex
	peers map[string]bool
}

// NewCoordinator returns a coordinator for cfg. w may be nil.
func NewCoordinator(cfg agent.Config, w Refresher) *Coordinator {
	return &Coordinator{cfg: cfg, watcher: w}
}

// Refresh rediscovers peers. A peer that vanished is not an error.
func (c *Coordinator) Refresh(_ context.Context) {
	names, err := roster.Names(c.cfg.Workspace)
	if err != nil {
		log.Warn(log.CatRoster, "Could not list peers", "agent", c.cfg.Name, "error", err)
		return
	}

	current := make(map[string]bool, len(names))
	for _, n := range names {
		if n != c.cfg.Name {
			current[n] = true
		}
	}

	c.mu.Lock()
	first := c.peers == nil
	for n := range current {
		if !c.peers[n] && !first {
			log.Info(log.CatRoster, "Peer appeared", "agent", c.cfg.Name, "peer", n)
		}
	}
	for n := range c.peers {
		if !current[n] {
			log.Info(log.CatRoster, "Peer disappeared", "agent", c.cfg.Name, "peer", n)
		}
	}
	c.peers = current
	c.mu.Unlock()
	if first {
		log.Info(log.CatRoster, "Discovered peers", "agent", c.cfg.Name, "count", len(current))
	}

	if c.watcher == nil {
		return
	}
	dirs, err := c.cfg.WatchDirs()
	if err != nil {
		log.Warn(log.CatWatcher, "Could not resolve watch list", "agent", c.cfg.Name, "error", err)
		return
	}
	c.watcher.Refresh(dirs)
}

// Peers returns the peers seen by the last Refresh, sorted.
func (c *Coordinator) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.peers))
	for n := range c.peers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NeedsCoordinator reports whether cfg watches queues that can only be
// known at evaluation time.
func NeedsCoordinator(cfg agent.Config) bool {
	return cfg.Trigger.WatchFunc != nil
}
