package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensitivity_jobs_processed_total",
		Help: "Total number of jobs that reached a terminal state, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sensitivity_job_processing_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensitivity_verdicts_total",
		Help: "Verdicts produced, by flag and source (classifier or mock)",
	}, []string{"flag", "source"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensitivity_frames_extracted_total",
		Help: "Total number of frames sampled across all jobs",
	})

	FrameClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensitivity_frame_classifications_total",
		Help: "Per-frame classifier calls, by outcome",
	}, []string{"outcome"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sensitivity_active_workers",
		Help: "Number of pool workers currently running a job",
	})

	QueuedTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sensitivity_queued_tasks",
		Help: "Tasks accepted by the worker pool and waiting for a worker",
	})

	ProgressSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sensitivity_progress_subscribers",
		Help: "Observers currently subscribed to job progress",
	})

	ProgressEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensitivity_progress_events_dropped_total",
		Help: "Progress events dropped because a subscriber or the broker relay was not keeping up",
	})
)
