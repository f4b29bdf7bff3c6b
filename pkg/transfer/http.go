// Package transfer is the resumable HTTP transfer primitive. Bytes stream into
// <dest>.partial using Range requests and are renamed onto dest once the body is
// complete. A suspended transfer is described by a JSON Token that can be persisted
// and handed back to Restore after a process restart.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
	"github.com/google/uuid"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "modelkeep/1.0"

// HTTPStarter opens transfers over plain HTTP(S).
type HTTPStarter struct {
	client    *http.Client
	userAgent string
}

// NewHTTPStarter creates a starter. headerTimeout bounds the wait for response
// headers only; the body of a multi-gigabyte artifact may stream for as long as it takes.
func NewHTTPStarter(headerTimeout time.Duration, userAgent string) *HTTPStarter {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return &HTTPStarter{
		client:    &http.Client{Transport: tr},
		userAgent: userAgent,
	}
}

// Begin implements Starter.
func (s *HTTPStarter) Begin(ctx context.Context, url, dest string, onProgress ProgressFunc) (Handle, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty source url", errutils.ErrTransferFailed)
	}
	if err := checkDest(dest); err != nil {
		return nil, err
	}
	if err := fsutil.RemoveIfExists(fsutil.PartialPath(dest)); err != nil {
		return nil, errutils.Wrap(err, "could not discard partial file")
	}
	return s.start(ctx, Token{ID: uuid.NewString(), URL: url, Dest: dest}, onProgress), nil
}

// Restore implements Starter.
func (s *HTTPStarter) Restore(ctx context.Context, token []byte, dest string, onProgress ProgressFunc) (Handle, error) {
	tok, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if dest != "" {
		tok.Dest = dest
	}
	if err := checkDest(tok.Dest); err != nil {
		return nil, err
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	tok.Offset, err = partialOffset(fsutil.PartialPath(tok.Dest), tok.Offset)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, tok, onProgress), nil
}

func (s *HTTPStarter) start(ctx context.Context, tok Token, onProgress ProgressFunc) *httpHandle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &httpHandle{
		client:     s.client,
		userAgent:  s.userAgent,
		onProgress: onProgress,
		cancel:     cancel,
		done:       make(chan struct{}),
		tok:        tok,
	}
	go h.run(runCtx)
	return h
}

func checkDest(dest string) error {
	if dest == "" || !filepath.IsAbs(dest) {
		return fmt.Errorf("transfer destination must be absolute: %w: %q", errutils.ErrInvalidPath, dest)
	}
	return nil
}

// partialOffset reconciles the offset recorded in a token with the bytes that are
// actually on disk. Anything past the recorded offset is cut off.
func partialOffset(path string, want int64) (int64, error) {
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errutils.Wrap(err, "could not stat partial file")
	}
	if st.Size() > want {
		if err := os.Truncate(path, want); err != nil {
			return 0, errutils.Wrap(err, "could not truncate partial file")
		}
		return want, nil
	}
	return st.Size(), nil
}

type httpHandle struct {
	client     *http.Client
	userAgent  string
	onProgress ProgressFunc
	cancel     context.CancelFunc
	done       chan struct{}

	mu     sync.Mutex
	tok    Token
	paused bool
	result Result
	err    error
}

func (h *httpHandle) run(ctx context.Context) {
	defer close(h.done)
	res, err := h.fetch(ctx)

	h.mu.Lock()
	if err != nil && h.paused {
		err = errutils.ErrTransferPaused
	}
	h.result, h.err = res, err
	h.mu.Unlock()
	h.cancel()
}

func (h *httpHandle) fetch(ctx context.Context) (Result, error) {
	h.mu.Lock()
	tok := h.tok
	h.mu.Unlock()

	partial := fsutil.PartialPath(tok.Dest)
	if err := os.MkdirAll(filepath.Dir(tok.Dest), fsutil.DirModeSecure); err != nil {
		return Result{}, errutils.Wrap(err, "could not create destination dir")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tok.URL, http.NoBody)
	if err != nil {
		return Result{}, errutils.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", h.userAgent)
	if tok.Offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", tok.Offset))
		if tok.ETag != "" {
			req.Header.Set("If-Range", tok.ETag)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, errutils.Wrap(err, "transfer request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	offset := tok.Offset
	switch resp.StatusCode {
	case http.StatusOK:
		// The server ignored or rejected the range; start over.
		offset = 0
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		if tok.Offset > 0 && tok.Offset == tok.Total {
			return h.finish(partial, tok.Dest, http.StatusPartialContent, tok.Offset)
		}
		return Result{StatusCode: resp.StatusCode}, errutils.ErrTransferFailedWithStatus(resp.StatusCode)
	default:
		return Result{StatusCode: resp.StatusCode}, errutils.ErrTransferFailedWithStatus(resp.StatusCode)
	}

	var total int64
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	h.mu.Lock()
	h.tok.Offset = offset
	h.tok.Total = total
	h.tok.ETag = resp.Header.Get("ETag")
	h.mu.Unlock()
	h.report(offset, total)

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partial, flags, fsutil.FileModeSecure)
	if err != nil {
		return Result{}, errutils.Wrap(err, "could not open partial file")
	}

	if _, err := io.Copy(&progressWriter{w: f, h: h}, resp.Body); err != nil {
		_ = f.Close()
		return Result{StatusCode: resp.StatusCode}, errutils.Wrap(err, "transfer interrupted")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return Result{StatusCode: resp.StatusCode}, errutils.Wrap(err, "could not sync partial file")
	}
	if err := f.Close(); err != nil {
		return Result{StatusCode: resp.StatusCode}, errutils.Wrap(err, "could not close partial file")
	}

	h.mu.Lock()
	written := h.tok.Offset
	h.mu.Unlock()
	if total > 0 && written != total {
		return Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: got %d of %d bytes", errutils.ErrTransferFailed, written, total)
	}
	return h.finish(partial, tok.Dest, resp.StatusCode, written)
}

func (h *httpHandle) finish(partial, dest string, status int, size int64) (Result, error) {
	if err := fsutil.Move(partial, dest); err != nil {
		return Result{StatusCode: status}, errutils.Wrap(err, "could not finalize file")
	}
	return Result{StatusCode: status, Path: dest, Bytes: size}, nil
}

func (h *httpHandle) advance(n int64) {
	h.mu.Lock()
	h.tok.Offset += n
	done, total := h.tok.Offset, h.tok.Total
	h.mu.Unlock()
	h.report(done, total)
}

func (h *httpHandle) report(done, total int64) {
	if h.onProgress != nil {
		h.onProgress(done, total)
	}
}

// Wait implements Handle.
func (h *httpHandle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Pause implements Handle.
func (h *httpHandle) Pause(ctx context.Context) ([]byte, error) {
	select {
	case <-h.done:
	default:
		h.mu.Lock()
		h.paused = true
		h.mu.Unlock()
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.Token()
}

// Token implements Handle.
func (h *httpHandle) Token() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finishedOK() {
		return nil, errutils.ErrTransferFinished
	}
	return h.tok.Encode()
}

// finishedOK must be called with mu held.
func (h *httpHandle) finishedOK() bool {
	select {
	case <-h.done:
		return h.err == nil && h.result.Success()
	default:
		return false
	}
}

type progressWriter struct {
	w io.Writer
	h *httpHandle
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.h.advance(int64(n))
	}
	return n, err
}
