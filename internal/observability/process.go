package observability

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"

	"github.com/geofleet/trackd/internal/models"
)

// ProcessStats samples resource usage of the running server process for
// the stats endpoint. Sampling failures degrade to partial stats rather
// than errors.
func ProcessStats(logger zerolog.Logger) *models.ProcessStats {
	stats := &models.ProcessStats{
		Goroutines: runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to inspect own process")
		return stats
	}

	if memInfo, err := proc.MemoryInfo(); err == nil {
		stats.MemoryBytes = memInfo.RSS
	} else {
		logger.Warn().Err(err).Msg("Failed to get memory information")
	}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpuPercent
	} else {
		logger.Warn().Err(err).Msg("Failed to get CPU usage")
	}

	return stats
}
