// File: protocol/response.go
// Package protocol - static-file response writing.
// License: Apache-2.0

package protocol

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/nisseweb/nisse/api"
)

// fileChunkSize is the unit in which file bodies are pushed through the
// stream; each chunk write is a potential suspension point.
const fileChunkSize = 32 * 1024

// Response inherits its status from the request and may transition
// 200 -> 400 (bad path) or 200 -> 404 (missing file) during resolution.
// A non-200 status never changes again.
type Response struct {
	request *Request
	Status  ErrorStatus
}

func NewResponse(req *Request) *Response {
	return &Response{request: req, Status: req.Status}
}

func (r *Response) Valid() bool {
	return r.Status.OK()
}

// Send resolves the URI against contentRoot and writes the response. The
// stream is flushed before returning.
func (r *Response) Send(stream api.Stream, contentRoot string, logger *zap.Logger) {
	filePath, size := r.resolvePath(contentRoot, logger)

	if !r.Status.OK() {
		b := bytebufferpool.Get()
		fmt.Fprintf(b, "HTTP/1.1 %d %s\r\n", r.Status.Code, r.Status.Message)
		fmt.Fprintf(b, "message: %s\r\n", r.Status.Diagnostic)
		b.WriteString("content-length: 0\r\n\r\n")
		stream.SendMessage(b.Bytes())
		bytebufferpool.Put(b)
		stream.Sync()
		logger.Debug("send",
			zap.Int("code", r.Status.Code),
			zap.String("message", r.Status.Message))
		return
	}

	b := bytebufferpool.Get()
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(b, "content-length: %d\r\n\r\n", size)
	stream.SendMessage(b.Bytes())
	bytebufferpool.Put(b)

	r.sendFile(stream, filePath, logger)
	stream.Sync()
	logger.Debug("send", zap.Int("code", 200), zap.String("file", filePath))
}

func (r *Response) sendFile(stream api.Stream, filePath string, logger *zap.Logger) {
	file, err := os.Open(filePath)
	if err != nil {
		// The file resolved moments ago; a failed open now can only be
		// answered by dropping the connection, the header is already out.
		logger.Warn("file open failed", zap.String("file", filePath), zap.Error(err))
		stream.Close()
		return
	}
	defer file.Close()

	buf := make([]byte, fileChunkSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			stream.SendMessage(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// resolvePath turns the request URI into a file under contentRoot.
// The URI is treated as a relative path and lexically normalized; anything
// empty or escaping the root is a 400. A directory target falls through to
// its index.html. A target that is not an existing regular file is a 404.
func (r *Response) resolvePath(contentRoot string, logger *zap.Logger) (string, int64) {
	if !r.Status.OK() {
		return "", 0
	}

	uri := r.request.URI
	rel := path.Clean(strings.TrimPrefix(uri, "/"))
	if rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		r.Status.Fail(400, "Bad Request",
			fmt.Sprintf("Invalid Request Path: %s", uri))
		logger.Debug("invalid request path", zap.String("uri", uri))
		return "", 0
	}

	filePath := filepath.Join(contentRoot, filepath.FromSlash(rel))
	info, err := os.Stat(filePath)
	if err == nil && info.IsDir() {
		filePath = filepath.Join(filePath, "index.html")
		info, err = os.Stat(filePath)
	}
	if err != nil || !info.Mode().IsRegular() {
		r.Status.Fail(404, "Not Found",
			fmt.Sprintf("No file found at: %s", uri))
		logger.Debug("invalid file path",
			zap.String("file", filePath),
			zap.String("uri", uri))
		return "", 0
	}

	// Canonicalize and make sure symlinks did not lead out of the root.
	resolved, err := filepath.EvalSymlinks(filePath)
	if err != nil {
		r.Status.Fail(404, "Not Found",
			fmt.Sprintf("No file found at: %s", uri))
		return "", 0
	}
	if resolved != contentRoot && !strings.HasPrefix(resolved, contentRoot+string(filepath.Separator)) {
		r.Status.Fail(400, "Bad Request",
			fmt.Sprintf("Invalid Request Path: %s", uri))
		logger.Debug("path escapes content root",
			zap.String("resolved", resolved),
			zap.String("uri", uri))
		return "", 0
	}

	return resolved, info.Size()
}
