package core

import "time"

// UnitRecord captures a finished (completed or aborted) unit.
type UnitRecord struct {
	Unit       UnitInfo
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Failed     bool
	Aborted    bool
}

// CategoryStats is the state of one scheduler category.
type CategoryStats struct {
	Name       string
	MaxThreads int
	Pending    int
	Scheduled  int
	Failures   int
}

// SchedulerStats represents runtime observability state for a task scheduler.
type SchedulerStats struct {
	ID               string
	Type             string
	Outstanding      int
	MaxOutstanding   int
	RunningConsumers int
	Shutdown         bool
	Terminated       bool
	Categories       []CategoryStats
}

// QueueStats represents runtime observability state for a processor queue.
type QueueStats struct {
	ID           string
	Strategy     string
	Started      bool
	Registered   int
	Running      int
	StoppedEarly int
	InFlight     int
	Failures     int
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Running bool
}
