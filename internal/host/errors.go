package host

import "codeberg.org/mutker/hostpulse/internal/errors"

const (
	ErrCPUReadFailed       = errors.ErrorCode("host_cpu_read_failed")
	ErrMemoryReadFailed    = errors.ErrorCode("host_memory_read_failed")
	ErrPartitionReadFailed = errors.ErrorCode("host_partition_read_failed")
	ErrNetReadFailed       = errors.ErrorCode("host_net_read_failed")
	ErrProcessReadFailed   = errors.ErrorCode("host_process_read_failed")
	ErrBatteryUnavailable  = errors.ErrorCode("host_battery_unavailable")
	ErrReportFailed        = errors.ErrorCode("host_capacity_report_failed")
	ErrReportTimeout       = errors.ErrorCode("host_capacity_report_timeout")
	ErrReportEmpty         = errors.ErrorCode("host_capacity_report_empty")
)
