package metrics

import "time"

// StatsSource exposes a point-in-time snapshot of live state for periodic
// sampling; no type in bastion implements it. Unlike the cluster-wide
// metrics a persistent manager would expose, this is local, in-process
// state, so a short poll interval is cheap.
type StatsSource interface {
	RunningContainers() int
}

// Collector periodically samples a StatsSource into the gauge metrics that
// aren't naturally updated at the point of occurrence.
type Collector struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector sampling source every interval.
func NewCollector(source StatsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins sampling in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ContainersRunning.Set(float64(c.source.RunningContainers()))
}
