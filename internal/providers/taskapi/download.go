package taskapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Download saves url to dest, bounded by the configured download timeout.
// The bearer token is sent when one is held. A failed transfer leaves no
// partial file behind.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	req, err := c.request(ctx)
	if err != nil {
		return 0, &RemoteFetchError{Op: "download", Err: err}
	}
	if tok := c.Token(); tok.Valid() {
		req.SetHeader("Authorization", tok.Type()+" "+tok.AccessToken)
	}

	resp, err := req.SetOutput(dest).Get(url)
	if err == nil && resp.IsError() {
		err = &RemoteFetchError{Op: "download", StatusCode: resp.StatusCode(), Err: fmt.Errorf("%s", resp.Status())}
	} else if err != nil {
		err = &RemoteFetchError{Op: "download", Err: err}
	}
	if err != nil {
		_ = os.Remove(dest)
		c.logger.Warn("download failed", zap.String("url", url), zap.Error(err))
		return 0, err
	}

	info, statErr := os.Stat(dest)
	if statErr != nil {
		return 0, fmt.Errorf("stat download: %w", statErr)
	}
	c.logger.Info("downloaded", zap.String("url", url), zap.String("dest", dest), zap.Int64("size", info.Size()))
	return info.Size(), nil
}
