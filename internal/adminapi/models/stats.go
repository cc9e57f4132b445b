package models

import "time"

// CPUStats contains host CPU statistics sampled via gopsutil.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains host memory statistics sampled via gopsutil.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// TransceiverStats mirrors transceiver.Stats, the Transceiver's own
// point-in-time snapshot of port and task-queue activity.
type TransceiverStats struct {
	OpenPorts      int   `json:"open_ports"`
	ClosingPorts   int   `json:"closing_ports"`
	TasksSubmitted int64 `json:"tasks_submitted"`
	TasksCompleted int64 `json:"tasks_completed"`
	TaskQueueDepth int   `json:"task_queue_depth"`
}

// StatsResponse contains the admin surface's runtime statistics.
type StatsResponse struct {
	Uptime        string           `json:"uptime"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     time.Time        `json:"start_time"`
	CPU           CPUStats         `json:"cpu"`
	Memory        MemoryStats      `json:"memory"`
	Transceiver   TransceiverStats `json:"transceiver"`
}
