package types

// HostMemory 主机内存使用情况
type HostMemory struct {
	TotalMB     int64   `json:"total_mb"`
	UsedMB      int64   `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}
