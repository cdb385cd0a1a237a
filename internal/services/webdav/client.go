package webdav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"

	"memecat/internal/config"
	"memecat/internal/diff"
	"memecat/internal/logging"
	"memecat/internal/services"
)

const (
	defaultLockRetries = 3
	defaultLockDelay   = 2 * time.Second
)

// Client lists and transfers files on a WebDAV share.
type Client struct {
	dav         *gowebdav.Client
	root        string
	recursive   bool
	lockRetries int
	lockDelay   time.Duration
	logger      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLockRetry overrides how often and how long writes wait on a locked
// (HTTP 423) resource.
func WithLockRetry(retries int, delay time.Duration) Option {
	return func(c *Client) {
		c.lockRetries = retries
		c.lockDelay = delay
	}
}

// New constructs a client for the configured remote.
func New(cfg config.Remote, logger *slog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "webdav", "init", "remote.url is required", nil)
	}
	dav := gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password)
	if cfg.TimeoutSeconds > 0 {
		dav.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}
	root := cfg.Root
	if root == "" {
		root = "/"
	}
	c := &Client{
		dav:         dav,
		root:        path.Clean("/" + root),
		recursive:   cfg.Recursive,
		lockRetries: defaultLockRetries,
		lockDelay:   defaultLockDelay,
		logger:      logging.NewComponentLogger(logger, "webdav"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the remote directory that is mirrored.
func (c *Client) Root() string {
	return c.root
}

// Ping verifies the share is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	return run(ctx, func() error {
		if err := c.dav.Connect(); err != nil {
			return classify("ping", c.root, err)
		}
		return nil
	})
}

// List returns every regular file under the root. Nested directories are only
// walked when the remote is configured as recursive.
func (c *Client) List(ctx context.Context) ([]diff.RemoteEntry, error) {
	var entries []diff.RemoteEntry
	pending := []string{c.root}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := pending[0]
		pending = pending[1:]

		var infos []os.FileInfo
		err := run(ctx, func() error {
			var err error
			infos, err = c.dav.ReadDir(dir)
			return err
		})
		if err != nil {
			return nil, classify("list", dir, err)
		}
		for _, info := range infos {
			full := path.Join(dir, info.Name())
			if info.IsDir() {
				if c.recursive {
					pending = append(pending, full)
				}
				continue
			}
			entries = append(entries, diff.RemoteEntry{
				Filename:   diff.NormalizeName(full),
				RemotePath: full,
				Size:       info.Size(),
				ModifiedAt: info.ModTime().UTC(),
			})
		}
	}
	c.logger.Debug("remote listing complete",
		logging.String("root", c.root),
		logging.Int("files", len(entries)))
	return entries, nil
}

// Fetch downloads the file at remotePath.
func (c *Client) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	var data []byte
	err := run(ctx, func() error {
		var err error
		data, err = c.dav.Read(remotePath)
		return err
	})
	if err != nil {
		return nil, classify("fetch", remotePath, err)
	}
	return data, nil
}

// Delete removes remotePath. A file that is already gone counts as deleted.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	err := c.withLockRetry(ctx, "delete", remotePath, func() error {
		return c.dav.Remove(remotePath)
	})
	if err != nil && gowebdav.IsErrNotFound(err) {
		return nil
	}
	if err != nil {
		return classify("delete", remotePath, err)
	}
	return nil
}

// Upload writes data to name under the root, replacing any existing file.
func (c *Client) Upload(ctx context.Context, name string, data []byte) error {
	target := path.Join(c.root, path.Base("/"+name))
	err := c.withLockRetry(ctx, "upload", target, func() error {
		return c.dav.Write(target, data, 0o644)
	})
	if err != nil {
		return classify("upload", target, err)
	}
	return nil
}

func (c *Client) withLockRetry(ctx context.Context, op, target string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = run(ctx, fn)
		if err == nil || !gowebdav.IsErrCode(err, http.StatusLocked) || attempt >= c.lockRetries {
			return err
		}
		c.logger.Debug("remote resource locked; retrying",
			logging.String("operation", op),
			logging.String("remote_path", target),
			logging.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.lockDelay):
		}
	}
}

// run executes fn but stops waiting once ctx is done. gowebdav has no
// context support; the abandoned call is bounded by the client timeout.
func run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classify(op, target string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTransientIO, "webdav", op, fmt.Sprintf("%s timed out", target), err)
	case gowebdav.IsErrNotFound(err):
		return services.Wrap(services.ErrNotFound, "webdav", op, target, err)
	case gowebdav.IsErrCode(err, http.StatusUnauthorized), gowebdav.IsErrCode(err, http.StatusForbidden):
		return services.Wrap(services.ErrConfiguration, "webdav", op, "remote rejected credentials", err)
	}
	return services.Wrap(services.ErrTransientIO, "webdav", op, target, err)
}
