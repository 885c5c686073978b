// Package archive resolves attachment filenames and lists the entries of
// zip, rar and 7z attachments.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/go-resty/resty/v2"
	"github.com/nwaples/rardecode/v2"
	"go.uber.org/zap"
)

// ErrUnsupported is returned for content that is not a known archive format.
var ErrUnsupported = errors.New("unsupported archive format")

// ErrTooLarge is returned when a download exceeds the configured cap.
var ErrTooLarge = errors.New("archive exceeds size limit")

// Format identifies an archive container.
type Format string

// Known formats.
const (
	FormatZip      Format = "zip"
	FormatRar      Format = "rar"
	FormatSevenZip Format = "7z"
)

var magic = []struct {
	prefix []byte
	format Format
}{
	{[]byte("PK\x03\x04"), FormatZip},
	{[]byte("PK\x05\x06"), FormatZip},
	{[]byte("Rar!\x1a\x07"), FormatRar},
	{[]byte("7z\xbc\xaf\x27\x1c"), FormatSevenZip},
}

// IsArchive reports whether an extension names an inspectable archive.
func IsArchive(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "zip", "rar", "7z", "7zip":
		return true
	default:
		return false
	}
}

// Config controls downloads.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	TempDir   string
}

// Inspector downloads attachments and lists archive entries.
type Inspector struct {
	client   *resty.Client
	maxBytes int64
	tempDir  string
	logger   *zap.Logger
}

// New builds an Inspector.
func New(cfg Config, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Inspector{client: client, maxBytes: cfg.MaxBytes, tempDir: cfg.TempDir, logger: logger}
}

// ResolveName finds the attachment's real filename from Content-Disposition,
// falling back to the last URL path segment. The extension is lowercased
// without the dot. Servers that refuse HEAD are asked for the first byte
// instead; any other non-2xx answer is an error.
func (i *Inspector) ResolveName(ctx context.Context, fileURL string) (string, string, error) {
	resp, err := i.client.R().SetContext(ctx).Head(fileURL)
	if err != nil {
		return "", "", fmt.Errorf("head %s: %w", fileURL, err)
	}
	header := resp.Header()
	switch code := resp.StatusCode(); {
	case code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented:
		header, err = i.firstByte(ctx, fileURL)
		if err != nil {
			return "", "", err
		}
	case code < 200 || code > 299:
		return "", "", fmt.Errorf("head %s: status %d", fileURL, code)
	}
	name := FilenameFromDisposition(header.Get("Content-Disposition"))
	if name == "" {
		name = filenameFromURL(fileURL)
	}
	return name, Extension(name), nil
}

// firstByte issues a ranged GET and returns the response headers.
func (i *Inspector) firstByte(ctx context.Context, fileURL string) (http.Header, error) {
	resp, err := i.client.R().
		SetContext(ctx).
		SetHeader("Range", "bytes=0-0").
		SetDoNotParseResponse(true).
		Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("ranged get %s: %w", fileURL, err)
	}
	_ = resp.RawBody().Close()
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("ranged get %s: status %d", fileURL, code)
	}
	return resp.Header(), nil
}

// List downloads fileURL and returns the names of the files it contains.
func (i *Inspector) List(ctx context.Context, fileURL string) ([]string, error) {
	tmp, err := i.download(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(tmp) }()
	return ListFile(tmp)
}

func (i *Inspector) download(ctx context.Context, fileURL string) (string, error) {
	resp, err := i.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(fileURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", fileURL, err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return "", fmt.Errorf("download %s: status %d", fileURL, resp.StatusCode())
	}

	f, err := os.CreateTemp(i.tempDir, "pncp-archive-*")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	name := f.Name()
	var src io.Reader = body
	if i.maxBytes > 0 {
		src = io.LimitReader(body, i.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("write temp archive: %w", err)
	}
	if i.maxBytes > 0 && n > i.maxBytes {
		_ = os.Remove(name)
		return "", fmt.Errorf("download %s: %w", fileURL, ErrTooLarge)
	}
	i.logger.Debug("archive downloaded", zap.String("url", fileURL), zap.Int64("bytes", n))
	return name, nil
}

// Detect sniffs the archive format from the file's leading bytes.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	head = head[:n]
	for _, m := range magic {
		if bytes.HasPrefix(head, m.prefix) {
			return m.format, nil
		}
	}
	return "", ErrUnsupported
}

// ListFile returns the names of regular files inside the archive at path.
func ListFile(path string) ([]string, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatZip:
		return listZip(path)
	case FormatRar:
		return listRar(path)
	case FormatSevenZip:
		return listSevenZip(path)
	default:
		return nil, ErrUnsupported
	}
}

func listZip(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = r.Close() }()
	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	return names, nil
}

func listRar(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rar: %w", err)
	}
	defer func() { _ = f.Close() }()
	r, err := rardecode.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open rar: %w", err)
	}
	var names []string
	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return names, fmt.Errorf("read rar entry: %w", err)
		}
		if !hdr.IsDir {
			names = append(names, hdr.Name)
		}
	}
}

func listSevenZip(path string) ([]string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open 7z: %w", err)
	}
	defer func() { _ = r.Close() }()
	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	return names, nil
}

// FilenameFromDisposition extracts the filename parameter of a
// Content-Disposition header. It returns "" when none is present.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return filepath.Base(strings.ReplaceAll(name, "\\", "/"))
		}
	}
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(key, "filename") {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if value != "" {
			return filepath.Base(strings.ReplaceAll(value, "\\", "/"))
		}
	}
	return ""
}

// Extension returns name's extension lowercased without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}
