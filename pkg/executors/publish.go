package executors

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/reelforge/reelforge/pkg/models"
	"github.com/reelforge/reelforge/pkg/publisher"
	"github.com/reelforge/reelforge/pkg/queue"
	"github.com/reelforge/reelforge/pkg/storage"
)

// PublishExecutor runs autopilot_publish jobs. The input_ref is a JSON
// PublishInput; the output_ref is the created post's URL (or platform id
// when the platform exposes no URL).
type PublishExecutor struct {
	registry *publisher.Registry
	resolver *storage.Resolver
	tempDir  string
	client   *http.Client
}

// NewPublishExecutor builds the executor.
func NewPublishExecutor(registry *publisher.Registry, resolver *storage.Resolver, tempDir string) *PublishExecutor {
	return &PublishExecutor{
		registry: registry,
		resolver: resolver,
		tempDir:  tempDir,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Kind implements queue.Executor.
func (e *PublishExecutor) Kind() models.JobKind { return models.JobKindAutopilotPost }

// Execute resolves the video ref (downloading migrated outputs back to a
// temp file) and runs the platform's upload state machine.
func (e *PublishExecutor) Execute(ctx context.Context, job *models.Job, progress queue.ProgressReporter) (string, error) {
	input, err := DecodePublishInput(job.InputRef)
	if err != nil {
		return "", err
	}
	progress.Report(ctx, "Uploading", 30)
	url, err := e.Upload(ctx, input)
	if err != nil {
		return "", err
	}
	progress.Report(ctx, "Published", 95)
	return url, nil
}

// Upload runs one publish end to end. The scheduler's post sweep uses this
// directly, outside the job queue.
func (e *PublishExecutor) Upload(ctx context.Context, input *PublishInput) (string, error) {
	pub, err := e.registry.Get(input.Platform)
	if err != nil {
		return "", queue.Failf(models.FailureValidation, "%v", err)
	}

	resolved, err := e.resolver.Resolve(ctx, input.VideoRef)
	if err != nil {
		return "", queue.Failf(models.FailureValidation, "resolve %q: %v", input.VideoRef, err)
	}
	localPath, cleanup, err := fetchLocal(ctx, e.client, resolved, e.tempDir)
	if err != nil {
		return "", err
	}
	defer cleanup()

	result, err := pub.Publish(ctx, publisher.Request{
		Platform:      input.Platform,
		AccountHandle: input.AccountHandle,
		VideoPath:     localPath,
		Title:         input.Title,
		Caption:       input.Caption,
		Tags:          input.Tags,
	})
	if err != nil {
		return "", &queue.ExecutionError{Kind: publisherFailureKind(err), Err: err}
	}
	if result.PostURL != "" {
		return result.PostURL, nil
	}
	return result.PlatformPostID, nil
}

func publisherFailureKind(err error) models.FailureKind {
	var ue *publisher.UploadError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return models.FailureTransient
}
