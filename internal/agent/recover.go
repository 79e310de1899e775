package agent

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/queue"
)

// RecoverOngoing puts items a crashed run left in processing back where the
// trigger will see them again. It must only run before the instance's loop
// starts claiming.
//
// Types that watch their processing queue resume those items themselves and
// are left alone. Synthetic trigger items are dropped; the condition that
// wrote them is evaluated afresh. Everything else goes back to the input
// queue when the type watches it, otherwise it stays for `kai retry`.
func RecoverOngoing(cfg Config) ([]string, error) {
	if watches(cfg, cfg.Processing) {
		return nil, nil
	}
	proc := cfg.ProcessingQueue()
	names, err := proc.List()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	if !watches(cfg, cfg.Input) {
		log.Warn(log.CatLoop, "Items left in processing; run 'kai retry' once they can be rerun",
			"agent", cfg.Name, "count", len(names))
		return nil, nil
	}

	var recovered []string
	for _, name := range names {
		if strings.HasPrefix(name, "trigger-") {
			if err := proc.Remove(name); err != nil {
				return recovered, err
			}
			log.Info(log.CatLoop, "Dropped stale trigger", "agent", cfg.Name, "item", name)
			continue
		}
		final, err := proc.Release(name, cfg.InputQueue())
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		if err != nil {
			return recovered, err
		}
		log.Info(log.CatLoop, "Requeued interrupted item", "agent", cfg.Name, "item", final)
		recovered = append(recovered, final)
	}
	return recovered, nil
}

func watches(cfg Config, dir string) bool {
	return slices.ContainsFunc(cfg.Trigger.Watch, func(w string) bool {
		return filepath.Clean(w) == filepath.Clean(dir)
	})
}
