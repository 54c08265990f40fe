package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Stream serving paths ---
	for _, p := range []string{"pretranscoded", "realtime"} {
		StreamRequestsTotal.WithLabelValues(p)
	}

	// --- Queue results and statuses ---
	for _, r := range []string{"completed", "failed", "abandoned"} {
		QueueJobsProcessed.WithLabelValues(r)
	}
	for _, s := range []string{"pending", "processing", "completed", "failed"} {
		QueueJobsByStatus.WithLabelValues(s)
	}

	// --- Watcher event types ---
	for _, e := range []string{"create", "write"} {
		WatcherEventsTotal.WithLabelValues(e)
	}

	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"media", "scratch", "store", "database", "unknown"}
	fsOps := []string{"read", "write", "stat", "readdir"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}

	// --- Filesystem retry metrics (per retry-operation × volume) ---
	retryOps := []string{"stat", "open"}

	for _, op := range retryOps {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- DB query operations ---
	for _, op := range []string{"insert_job", "update_job_status", "update_job_positions",
		"delete_job", "list_jobs", "reset_processing_jobs"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
