package rastersync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rasterFTP is a minimal passive-mode FTP server serving fixed files.
type rasterFTP struct {
	listener net.Listener
	files    map[string]string
	retrs    atomic.Int32
	wg       sync.WaitGroup
}

func newRasterFTP(t *testing.T, files map[string]string) *rasterFTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &rasterFTP{listener: ln, files: files}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		ln.Close() //nolint:errcheck
		s.wg.Wait()
	})
	return s
}

func (s *rasterFTP) addr() string { return s.listener.Addr().String() }

func (s *rasterFTP) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *rasterFTP) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close() //nolint:errcheck
	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\r\n", args...) //nolint:errcheck
		w.Flush()                              //nolint:errcheck
	}
	reply("220 ready")

	var data net.Listener
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch strings.ToUpper(cmd) {
		case "USER", "PASS":
			reply("230 logged in")
		case "FEAT":
			fmt.Fprintf(w, "211-Features:\r\n SIZE\r\n") //nolint:errcheck
			reply("211 End")
		case "TYPE", "OPTS":
			reply("200 OK")
		case "SIZE":
			content, ok := s.files[arg]
			if !ok {
				reply("550 not found")
				continue
			}
			reply("213 %d", len(content))
		case "EPSV":
			if data, err = net.Listen("tcp", "127.0.0.1:0"); err != nil {
				reply("425 no data connection")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port)
		case "RETR":
			if data == nil {
				reply("425 use EPSV first")
				continue
			}
			content, ok := s.files[arg]
			if !ok {
				reply("550 not found")
				data.Close() //nolint:errcheck
				data = nil
				continue
			}
			s.retrs.Add(1)
			reply("150 opening data connection")
			dc, err := data.Accept()
			if err != nil {
				reply("425 no data connection")
				continue
			}
			io.WriteString(dc, content) //nolint:errcheck
			dc.Close()                  //nolint:errcheck
			data.Close()                //nolint:errcheck
			data = nil
			reply("226 transfer complete")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSync_DownloadsFiles(t *testing.T) {
	srv := newRasterFTP(t, map[string]string{
		"/skogskarta/tall.tif": "pine-raster",
		"/skogskarta/gran.tif": "spruce",
	})
	dir := t.TempDir()

	s := New(Options{Addr: srv.addr(), RemoteDir: "/skogskarta", LocalDir: dir, Timeout: 5 * time.Second})
	res, err := s.Sync(context.Background(), []string{"tall.tif", "gran.tif"})
	require.NoError(t, err)

	assert.Equal(t, []string{"tall.tif", "gran.tif"}, res.Downloaded)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, int64(len("pine-raster")+len("spruce")), res.Bytes)

	got, err := os.ReadFile(filepath.Join(dir, "tall.tif"))
	require.NoError(t, err)
	assert.Equal(t, "pine-raster", string(got))

	parts, err := filepath.Glob(filepath.Join(dir, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestSync_SkipsUpToDateFiles(t *testing.T) {
	srv := newRasterFTP(t, map[string]string{
		"/r/tall.tif": "pine-raster",
		"/r/gran.tif": "spruce",
	})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tall.tif"), []byte("pine-raster"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gran.tif"), []byte("old"), 0o644))

	s := New(Options{Addr: srv.addr(), RemoteDir: "/r", LocalDir: dir})
	res, err := s.Sync(context.Background(), []string{"tall.tif", "gran.tif"})
	require.NoError(t, err)

	assert.Equal(t, []string{"tall.tif"}, res.Skipped)
	assert.Equal(t, []string{"gran.tif"}, res.Downloaded)
	assert.Equal(t, int32(1), srv.retrs.Load())

	got, err := os.ReadFile(filepath.Join(dir, "gran.tif"))
	require.NoError(t, err)
	assert.Equal(t, "spruce", string(got))
}

func TestSync_ForceRedownloads(t *testing.T) {
	srv := newRasterFTP(t, map[string]string{"/r/tall.tif": "pine"})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tall.tif"), []byte("pine"), 0o644))

	s := New(Options{Addr: srv.addr(), RemoteDir: "/r", LocalDir: dir, Force: true})
	res, err := s.Sync(context.Background(), []string{"tall.tif"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tall.tif"}, res.Downloaded)
	assert.Equal(t, int32(1), srv.retrs.Load())
}

func TestSync_MissingRemoteFile(t *testing.T) {
	srv := newRasterFTP(t, map[string]string{"/r/tall.tif": "pine"})
	dir := t.TempDir()

	s := New(Options{Addr: srv.addr(), RemoteDir: "/r", LocalDir: dir})
	res, err := s.Sync(context.Background(), []string{"tall.tif", "bok.tif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bok.tif")
	assert.Equal(t, []string{"tall.tif"}, res.Downloaded)

	_, statErr := os.Stat(filepath.Join(dir, "bok.tif"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSync_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() //nolint:errcheck

	s := New(Options{Addr: addr, LocalDir: t.TempDir(), Timeout: time.Second})
	_, err = s.Sync(context.Background(), []string{"tall.tif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp dial")
}

func TestNew_Defaults(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, 60*time.Second, s.opts.Timeout)
	assert.Equal(t, "anonymous", s.opts.User)
}
