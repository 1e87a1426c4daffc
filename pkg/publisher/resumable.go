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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/models"
)

// ResumableUploader is the session-based upload state machine used by
// platforms with a resumable protocol:
//
//	init      POST metadata → Location header with the session URI
//	chunks    PUT session URI with Content-Range; 308 means keep going
//	recover   on transient failure, query the committed offset with
//	          "bytes */total" and resume from there
//	finalize  the last chunk's 200/201 body carries the video id
type ResumableUploader struct {
	platform string
	initURL  string
	urlBase  string
	client   Doer
	tokens   *tokenGuard
	cfg      *config.PublishConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewResumableUploader builds the uploader. urlBase forms the public post
// URL, e.g. "https://youtube.com/shorts/".
func NewResumableUploader(platform, initURL, urlBase string, client Doer, tokens TokenStore, cfg *config.PublishConfig) *ResumableUploader {
	return &ResumableUploader{
		platform: platform,
		initURL:  initURL,
		urlBase:  urlBase,
		client:   NewBreakerClient(platform, client),
		tokens:   newTokenGuard(tokens, cfg.TokenRefreshWindow),
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Platform implements Publisher.
func (u *ResumableUploader) Platform() string { return u.platform }

type resumableMetadata struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus           string `json:"privacyStatus"`
		SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
	} `json:"status"`
}

// Publish runs the resumable session end to end.
func (u *ResumableUploader) Publish(ctx context.Context, req Request) (*Result, error) {
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

	sessionURI, err := u.initSession(ctx, req, tok.AccessToken, total)
	if err != nil {
		return nil, err
	}
	log := slog.With("platform", u.platform, "account", req.AccountHandle)
	log.Info("Resumable session opened", "size", total)

	videoID, err := u.uploadBody(ctx, sessionURI, req, total, log)
	if err != nil {
		return nil, err
	}
	log.Info("Upload complete", "video_id", videoID)

	return &Result{
		PlatformPostID: videoID,
		PostURL:        u.urlBase + videoID,
	}, nil
}

func (u *ResumableUploader) initSession(ctx context.Context, req Request, accessToken string, total int64) (string, error) {
	var meta resumableMetadata
	meta.Snippet.Title = req.Title
	meta.Snippet.Description = req.Caption
	meta.Snippet.Tags = req.Tags
	meta.Snippet.CategoryID = "22"
	meta.Status.PrivacyStatus = "public"

	payload, err := json.Marshal(meta)
	if err != nil {
		return "", Errf(models.FailureInit, "encode metadata: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.initURL, bytes.NewReader(payload))
	if err != nil {
		return "", Errf(models.FailureInit, "build init request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(total, 10))
	httpReq.Header.Set("X-Upload-Content-Type", "video/mp4")

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return "", Errf(models.FailureInit, "open session: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", Errf(models.FailureAuth, "session rejected with %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", Errf(models.FailureQuota, "session rate limited")
	case resp.StatusCode >= 300:
		return "", Errf(models.FailureInit, "session open returned %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", Errf(models.FailureProtocol, "session response missing Location header")
	}
	return location, nil
}

// uploadBody streams the file in fixed chunks, resuming from the server's
// committed offset after transient failures.
func (u *ResumableUploader) uploadBody(ctx context.Context, sessionURI string, req Request, total int64, log *slog.Logger) (string, error) {
	file, err := os.Open(req.VideoPath)
	if err != nil {
		return "", Errf(models.FailureValidation, "open video: %w", err)
	}
	defer file.Close()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	offset := int64(0)
	attempts := 0
	for offset < total {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return "", Errf(models.FailureChunk, "seek to %d: %w", offset, err)
		}
		end := offset + ChunkSize - 1
		if end >= total {
			end = total - 1
		}
		chunk := make([]byte, end-offset+1)
		if _, err := io.ReadFull(file, chunk); err != nil {
			return "", Errf(models.FailureChunk, "read chunk at %d: %w", offset, err)
		}

		tok, err := u.tokens.accessToken(ctx, u.platform, req.AccountHandle)
		if err != nil {
			return "", err
		}

		status, body, err := u.putRange(ctx, sessionURI, tok.AccessToken, chunk, offset, end, total)
		switch {
		case err == nil && status == 308:
			offset = end + 1
			attempts = 0
			bo.Reset()

		case err == nil && (status == http.StatusOK || status == http.StatusCreated):
			videoID, perr := parseVideoID(body)
			if perr != nil {
				return "", Errf(models.FailureFinalize, "parse finalize response: %w", perr)
			}
			return videoID, nil

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if _, rerr := u.tokens.store.Refresh(ctx, u.platform, req.AccountHandle); rerr != nil {
				return "", Errf(models.FailureAuth, "upload rejected and refresh failed: %w", rerr)
			}
			log.Warn("Upload rejected for auth, token refreshed", "offset", offset)

		default:
			attempts++
			if attempts > u.cfg.ChunkRetries {
				if err != nil {
					return "", Errf(models.FailureChunk, "upload at %d failed after %d attempts: %w", offset, attempts, err)
				}
				return "", Errf(models.FailureChunk, "upload at %d failed after %d attempts: status %d", offset, attempts, status)
			}
			log.Warn("Upload attempt failed, querying committed offset", "offset", offset, "status", status, "error", err)
			if err := u.sleep(ctx, bo.NextBackOff()); err != nil {
				return "", Errf(models.FailureCancelled, "upload at %d: %w", offset, err)
			}
			committed, qerr := u.queryOffset(ctx, sessionURI, total)
			if qerr != nil {
				log.Warn("Offset query failed, resuming from last known offset", "error", qerr)
			} else {
				offset = committed
			}
		}
	}
	return "", Errf(models.FailureFinalize, "session ended without a finalize response")
}

func (u *ResumableUploader) putRange(ctx context.Context, sessionURI, accessToken string, chunk []byte, start, end, total int64) (status int, body []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.ChunkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, bytes.NewReader(chunk))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	req.ContentLength = int64(len(chunk))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ = io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

// queryOffset asks the session for the committed byte count via an empty
// PUT with "bytes */total".
func (u *ResumableUploader) queryOffset(ctx context.Context, sessionURI string, total int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != 308 {
		return 0, fmt.Errorf("offset query returned %d", resp.StatusCode)
	}
	// Range: bytes=0-N means N+1 bytes are committed.
	rangeHeader := resp.Header.Get("Range")
	if rangeHeader == "" {
		return 0, nil
	}
	idx := strings.LastIndex(rangeHeader, "-")
	if idx < 0 {
		return 0, fmt.Errorf("malformed Range header %q", rangeHeader)
	}
	last, err := strconv.ParseInt(rangeHeader[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Range header %q: %w", rangeHeader, err)
	}
	return last + 1, nil
}

func parseVideoID(body []byte) (string, error) {
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("finalize response missing id")
	}
	return parsed.ID, nil
}
