package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/staging"
)

const (
	chunkSize = 32 * 1024

	// progress is logged for downloads above this size.
	progressLogThreshold = 10 * 1024 * 1024

	partSuffix = ".part"
)

// ProgressWriter wraps a writer to track download progress.
type ProgressWriter struct {
	Writer   io.Writer
	Total    int64
	Written  int64
	OnUpdate func(written, total int64)
}

func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// FetchToFile streams a file of an item to dest in fixed-size chunks.
//
// The body is written to dest+".part" and renamed only after the full body
// arrived, so a failed transfer never leaves something at dest that looks
// complete. The fetcher does not retry.
func (c *Client) FetchToFile(ctx context.Context, entry model.FileEntry, dest string) (*staging.Asset, error) {
	endpoint := c.DownloadURL(entry.Identifier, entry.Name)
	if entry.Identifier == "" || entry.Name == "" {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: errors.New("missing identifier or filename")}
	}

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Op: "download", URL: endpoint, StatusCode: resp.StatusCode}
	}

	part := dest + partSuffix
	file, err := os.Create(part)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", part, err)
	}

	written, copyErr := io.CopyBuffer(c.progressWriter(file, entry.Name, resp.ContentLength), resp.Body, make([]byte, chunkSize))
	closeErr := file.Close()
	if copyErr == nil && resp.ContentLength > 0 && written != resp.ContentLength {
		copyErr = fmt.Errorf("short body: got %d of %d bytes: %w", written, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(part)
		return nil, &FetchError{Op: "download", URL: endpoint, Err: copyErr}
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return nil, fmt.Errorf("finalize %s: %w", dest, err)
	}

	log.Printf("[archive] downloaded %s (%s)", entry.Name, humanize.Bytes(uint64(written)))
	return staging.NewFileAsset(entry.BaseName(), dest), nil
}

// FetchToMemory downloads a small file, such as cover art, into memory.
// Bodies larger than limit are rejected.
func (c *Client) FetchToMemory(ctx context.Context, entry model.FileEntry, limit int64) (*staging.Asset, error) {
	endpoint := c.DownloadURL(entry.Identifier, entry.Name)
	if entry.Identifier == "" || entry.Name == "" {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: errors.New("missing identifier or filename")}
	}

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Op: "download", URL: endpoint, StatusCode: resp.StatusCode}
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: fmt.Errorf("body of %d bytes exceeds limit %d", resp.ContentLength, limit)}
	}

	var buf bytes.Buffer
	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	if _, err := io.CopyBuffer(&buf, reader, make([]byte, chunkSize)); err != nil {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: err}
	}
	if limit > 0 && int64(buf.Len()) > limit {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: fmt.Errorf("body exceeds limit %d", limit)}
	}
	if resp.ContentLength > 0 && int64(buf.Len()) != resp.ContentLength {
		return nil, &FetchError{Op: "download", URL: endpoint, Err: io.ErrUnexpectedEOF}
	}
	return staging.NewMemoryAsset(entry.BaseName(), buf.Bytes()), nil
}

func (c *Client) progressWriter(w io.Writer, name string, total int64) io.Writer {
	if total <= progressLogThreshold {
		return w
	}
	lastDecile := int64(0)
	return &ProgressWriter{
		Writer: w,
		Total:  total,
		OnUpdate: func(written, total int64) {
			decile := written * 10 / total
			if decile > lastDecile {
				lastDecile = decile
				log.Printf("[archive] %s: %d%% (%s of %s)", name, decile*10,
					humanize.Bytes(uint64(written)), humanize.Bytes(uint64(total)))
			}
		},
	}
}
