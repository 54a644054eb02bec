package benchmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/spendlens/spendlens/internal/benchmark/jobs"
	"github.com/spendlens/spendlens/internal/storage"
	"github.com/spendlens/spendlens/internal/warehouse"
)

const resultsTable = "BENCHMARK_RESULTS"

// Runner claims benchmark jobs and drives them to a terminal status.
type Runner struct {
	Jobs         *jobs.Store
	Store        storage.ObjectStore
	Warehouse    warehouse.Engine
	Matcher      *Matcher
	Logger       *slog.Logger
	PollInterval time.Duration
	TempDir      string
}

// Run polls the job queue until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.drainQueue(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) drainQueue(ctx context.Context) {
	for {
		job, err := r.Jobs.Claim(ctx)
		if errors.Is(err, jobs.ErrNotFound) {
			return
		}
		if err != nil {
			r.logger().Error("claim benchmark job", "error", err)
			return
		}

		r.logger().Info("benchmark job started", "job", job.ID, "workspace", job.WorkspaceID)
		if err := r.processJob(ctx, job); err != nil {
			r.logger().Error("benchmark job failed", "job", job.ID, "error", err)
			if failErr := r.Jobs.Fail(ctx, job.ID, err.Error()); failErr != nil {
				r.logger().Error("record job failure", "job", job.ID, "error", failErr)
			}
			continue
		}
		if err := r.Jobs.Complete(ctx, job.ID); err != nil {
			r.logger().Error("record job completion", "job", job.ID, "error", err)
			continue
		}
		r.logger().Info("benchmark job completed", "job", job.ID)
	}
}

func (r *Runner) processJob(ctx context.Context, job jobs.Job) error {
	workDir, err := os.MkdirTemp(r.TempDir, "spendlens-benchmark-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath, err := storage.Download(ctx, r.Store, job.DataKey, workDir)
	if err != nil {
		return fmt.Errorf("download scraped dataset: %w", err)
	}
	scraped, err := LoadScraped(localPath)
	if err != nil {
		return err
	}

	clientResult, err := r.Warehouse.ReadTable(ctx, job.Database, "NORMALISED_DATA")
	if err != nil {
		return fmt.Errorf("read client rows: %w", err)
	}
	clients, err := LoadClients(clientResult)
	if err != nil {
		return err
	}

	rows, err := r.Matcher.Run(ctx, clients, scraped)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		r.logger().Info("no matches above threshold, nothing written", "job", job.ID)
		return nil
	}
	return r.persist(ctx, job, rows)
}

func (r *Runner) persist(ctx context.Context, job jobs.Job, rows []ResultRow) error {
	result := warehouse.Result{Columns: resultColumns}
	for _, row := range rows {
		result.Rows = append(result.Rows, row.values())
	}
	if err := r.Warehouse.UploadRows(ctx, job.Database, resultsTable, result); err != nil {
		return fmt.Errorf("upload benchmark results: %w", err)
	}

	artifact, err := encodeResultsParquet(rows)
	if err != nil {
		return err
	}
	key, err := storage.BuildResultArtifactPath(job.WorkspaceID, job.ID)
	if err != nil {
		return err
	}
	_, err = r.Store.Put(ctx, key, bytes.NewReader(artifact), int64(len(artifact)),
		storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		return fmt.Errorf("upload result artifact: %w", err)
	}
	r.logger().Info("benchmark results persisted", "job", job.ID, "rows", len(rows), "artifact", key)
	return nil
}

func encodeResultsParquet(rows []ResultRow) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[ResultRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
