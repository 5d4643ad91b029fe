// Package rastersync downloads the per-species volume rasters from an FTP
// server into the local raster directory.
package rastersync

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures a Syncer.
type Options struct {
	Addr      string // host:port
	User      string // empty means anonymous
	Pass      string
	RemoteDir string
	LocalDir  string
	Timeout   time.Duration
	// Force downloads files even when a local copy of the same size exists.
	Force bool
}

// Result summarises one sync run.
type Result struct {
	Downloaded []string `json:"downloaded"`
	Skipped    []string `json:"skipped"`
	Bytes      int64    `json:"bytes"`
}

// Syncer mirrors named files from one FTP directory.
type Syncer struct {
	opts Options
}

// New returns a Syncer. A zero timeout means 60s.
func New(opts Options) *Syncer {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.User == "" {
		opts.User, opts.Pass = "anonymous", "anonymous@"
	}
	return &Syncer{opts: opts}
}

// Sync downloads files over a single connection. Files are written to a
// temporary name and renamed into place, so a failed transfer never leaves
// a truncated raster behind. The first failure stops the run.
func (s *Syncer) Sync(ctx context.Context, files []string) (*Result, error) {
	if err := os.MkdirAll(s.opts.LocalDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "rastersync: create raster dir")
	}

	zap.L().Debug("rastersync: connecting", zap.String("addr", s.opts.Addr))
	conn, err := ftp.Dial(s.opts.Addr, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "rastersync: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(s.opts.User, s.opts.Pass); err != nil {
		return nil, eris.Wrap(err, "rastersync: ftp login")
	}

	res := &Result{}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "rastersync: cancelled")
		}
		remote := path.Join(s.opts.RemoteDir, name)
		local := filepath.Join(s.opts.LocalDir, name)

		if !s.opts.Force && upToDate(conn, remote, local) {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		n, err := download(conn, remote, local)
		if err != nil {
			return res, eris.Wrapf(err, "rastersync: download %s", name)
		}
		res.Downloaded = append(res.Downloaded, name)
		res.Bytes += n
		zap.L().Info("rastersync: downloaded raster", zap.String("file", name), zap.Int64("bytes", n))
	}
	return res, nil
}

// upToDate reports whether local exists with the remote file's size.
func upToDate(conn *ftp.ServerConn, remote, local string) bool {
	fi, err := os.Stat(local)
	if err != nil {
		return false
	}
	size, err := conn.FileSize(remote)
	if err != nil {
		return false
	}
	return size == fi.Size()
}

func download(conn *ftp.ServerConn, remote, local string) (int64, error) {
	resp, err := conn.Retr(remote)
	if err != nil {
		return 0, eris.Wrap(err, "ftp retrieve")
	}

	tmp, err := os.CreateTemp(filepath.Dir(local), filepath.Base(local)+".*.part")
	if err != nil {
		resp.Close() //nolint:errcheck
		return 0, eris.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, copyErr := io.Copy(tmp, resp)
	closeErr := resp.Close()
	if err := tmp.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return n, eris.Wrap(copyErr, "write file")
	}
	if closeErr != nil {
		return n, eris.Wrap(closeErr, "close ftp response")
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
