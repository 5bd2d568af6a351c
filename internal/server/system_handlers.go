package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/database"
	"github.com/aristath/crucible/internal/jobs"
	"github.com/aristath/crucible/internal/reliability"
	"github.com/aristath/crucible/internal/scheduler"
)

// SystemHandlers exposes monitoring endpoints, maintenance job triggers and
// archive access.
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	historyDB *database.DB
	resultsDB *database.DB
	manager   *jobs.Manager
	sched     *scheduler.Scheduler
	archive   *reliability.ArchiveService
	startedAt time.Time

	mu              sync.RWMutex
	maintenanceJobs map[string]scheduler.Job
}

// SystemStatusResponse is the GET /api/system/status payload
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	MemoryUsedMB  float64           `json:"memory_used_mb"`
	SingleRun     jobs.SingleStatus `json:"single_run"`
	Batch         jobs.BatchStatus  `json:"batch"`
	Databases     []DatabaseInfo    `json:"databases"`
}

// DatabaseInfo summarizes one database file
type DatabaseInfo struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// DatabaseStatsResponse is the GET /api/system/database/stats payload
type DatabaseStatsResponse struct {
	Databases   []DatabaseInfo `json:"databases"`
	TotalSizeMB float64        `json:"total_size_mb"`
	LastChecked string         `json:"last_checked"`
}

// DiskUsageResponse is the GET /api/system/disk payload
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	DatabasesMB float64 `json:"databases_mb"`
	CSVDirMB    float64 `json:"csv_dir_mb"`
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	historyDB *database.DB,
	resultsDB *database.DB,
	manager *jobs.Manager,
	sched *scheduler.Scheduler,
	archive *reliability.ArchiveService,
) *SystemHandlers {
	return &SystemHandlers{
		log:             log.With().Str("handler", "system").Logger(),
		dataDir:         dataDir,
		historyDB:       historyDB,
		resultsDB:       resultsDB,
		manager:         manager,
		sched:           sched,
		archive:         archive,
		startedAt:       time.Now(),
		maintenanceJobs: make(map[string]scheduler.Job),
	}
}

// SetJobs registers maintenance jobs by name for manual triggering
func (h *SystemHandlers) SetJobs(maintenanceJobs ...scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, job := range maintenanceJobs {
		if job == nil {
			continue
		}
		h.maintenanceJobs[job.Name()] = job
	}
}

// RegisterRoutes registers system and archive routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)
		r.Get("/jobs", h.HandleJobsStatus)
		r.Post("/jobs/{name}", h.HandleTriggerJob)
	})

	r.Route("/api/archive", func(r chi.Router) {
		r.Get("/list", h.HandleArchiveList)
		r.Post("/upload", h.HandleArchiveUpload)
	})
}

// HandleSystemStatus returns resource usage, job slots and database sizes
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent, memUsedMB := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		MemoryUsedMB:  memUsedMB,
		Databases:     h.databaseInfos(),
	}

	if h.manager != nil {
		response.SingleRun = h.manager.SingleStatus()
		response.Batch = h.manager.BatchStatus()
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns size and page statistics for both databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := h.databaseInfos()

	totalSizeMB := 0.0
	for _, info := range infos {
		totalSizeMB += info.SizeMB + info.WALSizeMB
	}

	h.writeJSON(w, http.StatusOK, DatabaseStatsResponse{
		Databases:   infos,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns disk usage of the data directory
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	databasesMB := 0.0
	for _, info := range h.databaseInfos() {
		databasesMB += info.SizeMB + info.WALSizeMB
	}

	h.writeJSON(w, http.StatusOK, DiskUsageResponse{
		DataDirMB:   h.getDirSize(h.dataDir),
		DatabasesMB: databasesMB,
		CSVDirMB:    h.getDirSize(filepath.Join(h.dataDir, "csv")),
	})
}

// HandleJobsStatus lists registered maintenance jobs and current job slots
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.maintenanceJobs))
	for name := range h.maintenanceJobs {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	response := map[string]interface{}{
		"maintenance_jobs": names,
	}
	if h.manager != nil {
		response["single_run"] = h.manager.SingleStatus()
		response["batch"] = h.manager.BatchStatus()
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerJob runs a registered maintenance job immediately.
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.maintenanceJobs[name]
	h.mu.RUnlock()

	if !ok {
		h.writeError(w, apperr.DataUnavailable("no maintenance job named %s", name))
		return
	}

	// The job runs in the background; failures land in the log
	go func() {
		if err := h.sched.RunNow(job); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "triggered",
		"job":    name,
	})
}

// HandleArchiveList lists uploaded result archives, newest first
func (h *SystemHandlers) HandleArchiveList(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeError(w, apperr.DataUnavailable("results archive is not configured"))
		return
	}

	archives, err := h.archive.ListArchives(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if archives == nil {
		archives = []reliability.ArchiveInfo{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"archives": archives,
	})
}

// HandleArchiveUpload creates and uploads a results archive right away
func (h *SystemHandlers) HandleArchiveUpload(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeError(w, apperr.DataUnavailable("results archive is not configured"))
		return
	}

	filename, err := h.archive.CreateAndUploadArchive(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploaded": filename,
	})
}

// databaseInfos collects stats for both databases, skipping unavailable ones
func (h *SystemHandlers) databaseInfos() []DatabaseInfo {
	infos := []DatabaseInfo{}

	for _, db := range []*database.DB{h.historyDB, h.resultsDB} {
		if db == nil {
			continue
		}

		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}

		infos = append(infos, DatabaseInfo{
			Name:      db.Name(),
			SizeMB:    float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
		})
	}

	return infos
}

// getSystemStats samples CPU and memory usage.
// The CPU sample window is 100ms to keep the endpoint fast.
func (h *SystemHandlers) getSystemStats() (float64, float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0, 0
	}

	return cpuAvg, memStat.UsedPercent, float64(memStat.Used) / 1024 / 1024
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a structured error response
func (h *SystemHandlers) writeError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	h.log.Warn().Str("kind", string(appErr.Kind)).Msg(appErr.Message)
	h.writeJSON(w, appErr.HTTPStatus(), map[string]interface{}{
		"error": appErr,
	})
}
