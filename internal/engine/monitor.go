package engine

import "time"

// StartMemoryMonitor launches a background goroutine that samples the
// engine's estimated memory footprint every cfg.MemoryMonitorInterval and
// invokes warn on every sample at or above LRUCleanupThresholdPct percent of
// MemoryLimitMB (spec §4.D's memory ceiling and LRU cleanup threshold). It
// only calls warn; it does not evict or checkpoint. Call StopMemoryMonitor to terminate
// it. A no-op if MemoryMonitorEnabled is false or MemoryLimitMB is zero.
func (e *Engine) StartMemoryMonitor(warn MemoryWarningFunc) {
	if !e.cfg.MemoryMonitorEnabled || e.cfg.MemoryLimitMB == 0 {
		return
	}
	e.onMemoryWarning = warn
	e.stopMonitor = make(chan struct{})
	e.monitorDone = make(chan struct{})

	interval := e.cfg.MemoryMonitorInterval
	if interval <= 0 {
		interval = time.Second
	}
	limitBytes := e.cfg.MemoryLimitMB * 1024 * 1024

	go func() {
		defer close(e.monitorDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopMonitor:
				return
			case <-ticker.C:
				used := e.MemoryBytes()
				thresholdBytes := limitBytes * uint64(e.cfg.LRUCleanupThresholdPct) / 100
				if used >= thresholdBytes && e.onMemoryWarning != nil {
					e.onMemoryWarning(used, limitBytes)
				}
			}
		}
	}()
}

// StopMemoryMonitor halts a monitor started by StartMemoryMonitor, blocking
// until the background goroutine has exited. A no-op if none is running.
func (e *Engine) StopMemoryMonitor() {
	if e.stopMonitor == nil {
		return
	}
	close(e.stopMonitor)
	<-e.monitorDone
	e.stopMonitor = nil
	e.monitorDone = nil
}
