package executors

import (
	"context"
	"os"

	"github.com/reelforge/reelforge/pkg/media"
	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/pipeline"
	"github.com/reelforge/reelforge/pkg/queue"
	"github.com/reelforge/reelforge/pkg/services"
	"github.com/reelforge/reelforge/pkg/strategy"
)

// SourceDownloader fetches a candidate's source video to local disk.
type SourceDownloader interface {
	Download(ctx context.Context, candidate *models.ContentCandidate, dir string) (string, error)
}

// TransformExecutor runs download_and_process jobs. The input_ref is a
// content candidate id; the output_ref is the rendered clip's path.
type TransformExecutor struct {
	candidates  *services.CandidateService
	downloader  SourceDownloader
	transcriber media.Transcriber
	planner     *strategy.Planner
	pipe        *pipeline.Pipeline
	outputDir   string
}

// NewTransformExecutor builds the executor. transcriber may be nil.
func NewTransformExecutor(candidates *services.CandidateService, downloader SourceDownloader, transcriber media.Transcriber, planner *strategy.Planner, pipe *pipeline.Pipeline, outputDir string) *TransformExecutor {
	return &TransformExecutor{
		candidates:  candidates,
		downloader:  downloader,
		transcriber: transcriber,
		planner:     planner,
		pipe:        pipe,
		outputDir:   outputDir,
	}
}

// Kind implements queue.Executor.
func (e *TransformExecutor) Kind() models.JobKind { return models.JobKindTransform }

// Execute downloads the source, plans a strategy from its transcript and
// runs the transformation pipeline.
func (e *TransformExecutor) Execute(ctx context.Context, job *models.Job, progress queue.ProgressReporter) (string, error) {
	candidate, err := e.candidates.Get(ctx, job.InputRef)
	if err != nil {
		return "", queue.Failf(models.FailureValidation, "load candidate %q: %v", job.InputRef, err)
	}

	workDir := tempWorkDir(e.outputDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", queue.Failf(models.FailureFatal, "create work dir: %v", err)
	}
	defer os.RemoveAll(workDir)

	progress.Report(ctx, "Downloading", 5)
	sourcePath, err := e.downloader.Download(ctx, candidate, workDir)
	if err != nil {
		return "", queue.Failf(models.FailureTransient, "download source %s: %v", candidate.URL, err)
	}

	progress.Report(ctx, "Transcribing", 15)
	var transcript []models.TranscriptSegment
	if e.transcriber != nil {
		if transcript, err = e.transcriber.Transcribe(ctx, sourcePath); err != nil {
			// The pipeline degrades to no captions; planning proceeds on
			// metadata alone.
			transcript = nil
		}
	}

	progress.Report(ctx, "Planning", 20)
	style, _ := candidate.Metadata["style"].(string)
	plan := e.planner.Plan(ctx, strategy.Input{
		Transcript: transcript,
		Niche:      candidate.Niche,
		Style:      style,
	})

	outputPath, err := e.pipe.Run(ctx, pipeline.Request{
		SourcePath:     sourcePath,
		OutputDir:      e.outputDir,
		EnabledFilters: plan.RecommendedFilters,
		Strategy:       &plan,
		Transcript:     transcript,
		Progress: func(substate string, p int) {
			// Pipeline progress maps to the 25..95 band of the job.
			progress.Report(ctx, substate, 25+p*70/100)
		},
	})
	if err != nil {
		return "", queue.Failf(models.FailureTransient, "pipeline: %v", err)
	}
	return outputPath, nil
}
