package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/models"
)

// ChunkSize is the fixed upload chunk size. The final chunk carries the
// remainder and may be smaller.
const ChunkSize = 10_485_760

// ChunkedUploader is the direct-post upload state machine used by
// platforms with an init → chunked PUT → poll-status flow. The sequence:
//
//	init    POST {size, chunk_size, chunk_count} → {publish_id, upload_url}
//	chunks  PUT upload_url with Content-Range per chunk
//	result  post URL derived from the account's open id and the publish id
//
// Each chunk gets a retry budget; a token expiring mid-upload is refreshed
// before the next attempt without consuming that budget.
type ChunkedUploader struct {
	platform string
	initURL  string
	client   Doer
	tokens   *tokenGuard
	cfg      *config.PublishConfig

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChunkedUploader builds the uploader for one platform endpoint.
func NewChunkedUploader(platform, initURL string, client Doer, tokens TokenStore, cfg *config.PublishConfig) *ChunkedUploader {
	return &ChunkedUploader{
		platform: platform,
		initURL:  initURL,
		client:   NewBreakerClient(platform, client),
		tokens:   newTokenGuard(tokens, cfg.TokenRefreshWindow),
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Platform implements Publisher.
func (u *ChunkedUploader) Platform() string { return u.platform }

type chunkedInitRequest struct {
	PostInfo struct {
		Title         string   `json:"title"`
		Description   string   `json:"description,omitempty"`
		Tags          []string `json:"tags,omitempty"`
		PrivacyLevel  string   `json:"privacy_level"`
		DisableDuet   bool     `json:"disable_duet"`
		DisableStitch bool     `json:"disable_stitch"`
	} `json:"post_info"`
	SourceInfo struct {
		Source          string `json:"source"`
		VideoSize       int64  `json:"video_size"`
		ChunkSize       int64  `json:"chunk_size"`
		TotalChunkCount int    `json:"total_chunk_count"`
	} `json:"source_info"`
}

type chunkedInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Publish runs the full upload state machine.
func (u *ChunkedUploader) Publish(ctx context.Context, req Request) (*Result, error) {
	info, err := os.Stat(req.VideoPath)
	if err != nil {
		return nil, Errf(models.FailureValidation, "stat video: %w", err)
	}
	total := info.Size()
	if total == 0 {
		return nil, Errf(models.FailureValidation, "video file %s is empty", req.VideoPath)
	}

	tok, err := u.tokens.accessToken(ctx, u.platform, req.AccountHandle)
	if err != nil {
		return nil, err
	}

	publishID, uploadURL, err := u.initUpload(ctx, req, tok.AccessToken, total)
	if err != nil {
		return nil, err
	}
	log := slog.With("platform", u.platform, "account", req.AccountHandle, "publish_id", publishID)
	log.Info("Upload session initialized", "size", total, "chunks", chunkCount(total))

	file, err := os.Open(req.VideoPath)
	if err != nil {
		return nil, Errf(models.FailureValidation, "open video: %w", err)
	}
	defer file.Close()

	for start := int64(0); start < total; start += ChunkSize {
		end := start + ChunkSize - 1
		if end >= total {
			end = total - 1
		}
		chunk := make([]byte, end-start+1)
		if _, err := io.ReadFull(file, chunk); err != nil {
			return nil, Errf(models.FailureChunk, "read chunk at %d: %w", start, err)
		}
		if err := u.putChunk(ctx, uploadURL, req.AccountHandle, chunk, start, end, total, log); err != nil {
			return nil, err
		}
	}
	log.Info("Upload complete")

	return &Result{
		PlatformPostID: publishID,
		PostURL:        postURL(u.platform, tok.OwnerID, publishID),
	}, nil
}

func (u *ChunkedUploader) initUpload(ctx context.Context, req Request, accessToken string, total int64) (publishID, uploadURL string, err error) {
	var body chunkedInitRequest
	body.PostInfo.Title = req.Title
	body.PostInfo.Description = req.Caption
	body.PostInfo.Tags = req.Tags
	body.PostInfo.PrivacyLevel = "PUBLIC_TO_EVERYONE"
	body.SourceInfo.Source = "FILE_UPLOAD"
	body.SourceInfo.VideoSize = total
	body.SourceInfo.ChunkSize = ChunkSize
	body.SourceInfo.TotalChunkCount = chunkCount(total)

	payload, err := json.Marshal(body)
	if err != nil {
		return "", "", Errf(models.FailureInit, "encode init request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.initURL, bytes.NewReader(payload))
	if err != nil {
		return "", "", Errf(models.FailureInit, "build init request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return "", "", Errf(models.FailureInit, "init upload: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", "", Errf(models.FailureAuth, "init rejected with %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", "", Errf(models.FailureQuota, "init rate limited")
	case resp.StatusCode >= 300:
		return "", "", Errf(models.FailureInit, "init returned %d", resp.StatusCode)
	}

	var parsed chunkedInitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", Errf(models.FailureProtocol, "decode init response: %w", err)
	}
	if parsed.Data.PublishID == "" || parsed.Data.UploadURL == "" {
		return "", "", Errf(models.FailureProtocol, "init response missing publish_id or upload_url (error=%s)", parsed.Error.Code)
	}
	return parsed.Data.PublishID, parsed.Data.UploadURL, nil
}

// putChunk uploads one chunk, retrying transient failures up to the
// configured budget. Auth failures trigger a token refresh and the attempt
// is repeated without consuming the budget.
func (u *ChunkedUploader) putChunk(ctx context.Context, uploadURL, accountHandle string, chunk []byte, start, end, total int64, log *slog.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	attempts := 0
	for {
		tok, err := u.tokens.accessToken(ctx, u.platform, accountHandle)
		if err != nil {
			return err
		}

		status, retryAfter, err := u.doPut(ctx, uploadURL, tok.AccessToken, chunk, start, end, total)
		switch {
		case err == nil && (status == http.StatusOK || status == http.StatusCreated || status == http.StatusPartialContent):
			return nil

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			// Refresh and retry the same attempt.
			if _, rerr := u.tokens.store.Refresh(ctx, u.platform, accountHandle); rerr != nil {
				return Errf(models.FailureAuth, "chunk at %d rejected and refresh failed: %w", start, rerr)
			}
			log.Warn("Chunk rejected for auth, token refreshed", "start", start)
			continue

		case status == http.StatusTooManyRequests:
			wait := retryAfter
			if wait <= 0 {
				wait = bo.NextBackOff()
			}
			attempts++
			if attempts > u.cfg.ChunkRetries {
				return Errf(models.FailureQuota, "chunk at %d rate limited after %d attempts", start, attempts)
			}
			log.Warn("Chunk rate limited, backing off", "start", start, "wait", wait)
			if err := u.sleep(ctx, wait); err != nil {
				return Errf(models.FailureCancelled, "chunk at %d: %w", start, err)
			}
			continue

		default:
			attempts++
			if attempts > u.cfg.ChunkRetries {
				if err != nil {
					return Errf(models.FailureChunk, "chunk at %d failed after %d attempts: %w", start, attempts, err)
				}
				return Errf(models.FailureChunk, "chunk at %d failed after %d attempts: status %d", start, attempts, status)
			}
			log.Warn("Chunk attempt failed, retrying", "start", start, "status", status, "error", err)
			if err := u.sleep(ctx, bo.NextBackOff()); err != nil {
				return Errf(models.FailureCancelled, "chunk at %d: %w", start, err)
			}
		}
	}
}

func (u *ChunkedUploader) doPut(ctx context.Context, uploadURL, accessToken string, chunk []byte, start, end, total int64) (status int, retryAfter time.Duration, err error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.ChunkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(chunk))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	req.ContentLength = int64(len(chunk))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if sec, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil {
		retryAfter = time.Duration(sec) * time.Second
	}
	return resp.StatusCode, retryAfter, nil
}

func chunkCount(total int64) int {
	n := total / ChunkSize
	if total%ChunkSize != 0 {
		n++
	}
	return int(n)
}

func postURL(platform, openID, publishID string) string {
	if openID == "" {
		return ""
	}
	return fmt.Sprintf("https://www.%s.com/@%s/video/%s", platform, openID, publishID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
