package model

import "time"

// BatchMetrics summarises one batch fetch. It is produced per invocation and
// only logged or returned, never persisted.
type BatchMetrics struct {
	Total         int           `json:"total"`
	Success       int           `json:"success"`
	Failed        int           `json:"failed"`
	CacheHits     int           `json:"cacheHits"`
	SnapshotHits  int           `json:"snapshotHits"`
	ProviderCalls int           `json:"providerCalls"`
	AvgLatency    time.Duration `json:"avgLatencyNs"`
	MinLatency    time.Duration `json:"minLatencyNs"`
	MaxLatency    time.Duration `json:"maxLatencyNs"`
	P95Latency    time.Duration `json:"p95LatencyNs"`
	Duration      time.Duration `json:"durationNs"`
}

// SnapshotJobMetrics is the report of one snapshot job run.
type SnapshotJobMetrics struct {
	RunID         string            `json:"runId"`
	StartedAt     time.Time         `json:"startedAt"`
	FinishedAt    time.Time         `json:"finishedAt"`
	Duration      time.Duration     `json:"durationNs"`
	WorkingSet    int               `json:"workingSet"`
	OpenPositions int               `json:"openPositions"`
	RecentTrades  int               `json:"recentTrades"`
	UsedFallback  bool              `json:"usedFallback"`
	AlreadyFresh  int               `json:"alreadyFresh"`
	Batches       int               `json:"batches"`
	Processed     int               `json:"processed"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Skipped       int               `json:"skipped"`
	Persisted     int               `json:"persisted"`
	CacheHits     int               `json:"cacheHits"`
	ProviderCalls int               `json:"providerCalls"`
	DeadlineHit   bool              `json:"deadlineHit"`
	Success       bool              `json:"success"`
	Errors        []InstrumentError `json:"errors"`
}
