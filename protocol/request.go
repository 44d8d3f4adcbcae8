// File: protocol/request.go
// Package protocol - HTTP/1.1 request parsing.
// License: Apache-2.0

package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nisseweb/nisse/api"
)

// Request is one parsed HTTP request. Status holds 200 iff the request line
// is a well-formed HTTP/1.1 GET and every header parsed.
type Request struct {
	Status  ErrorStatus
	Method  string
	URI     string
	Version string

	bodySize int
}

func (r *Request) Valid() bool {
	return r.Status.OK()
}

// ReadRequest parses one request from the stream: the CRLF-terminated
// request line, headers up to the bare "\r\n" line, then exactly
// content-length body bytes, which a GET discards.
func ReadRequest(stream api.Stream, logger *zap.Logger) *Request {
	req := &Request{Status: NewErrorStatus()}

	firstLine := stream.GetNextLine()
	req.Method, req.URI, req.Version = splitRequestLine(firstLine)

	if req.Method == "" || req.URI == "" || req.Version == "" {
		req.Status.Fail(400, "Bad Request",
			fmt.Sprintf("Malformed request line '%s'", trimCRLF(firstLine)))
		logger.Debug("bad request line", zap.String("line", trimCRLF(firstLine)))
		return req
	}
	if req.Method != "GET" {
		req.Status.Fail(405, "Method Not Allowed",
			fmt.Sprintf("HTTP method '%s' is not supported", req.Method))
		logger.Debug("bad request: not a GET", zap.String("line", trimCRLF(firstLine)))
		return req
	}
	if req.Version != "HTTP/1.1" {
		req.Status.Fail(400, "Bad Request",
			fmt.Sprintf("HTTP version '%s' is not supported", req.Version))
		logger.Debug("bad request: not HTTP/1.1", zap.String("line", trimCRLF(firstLine)))
		return req
	}

	for req.Status.OK() {
		header := stream.GetNextLine()
		if header == "\r\n" {
			break
		}
		name, value, ok := splitHeader(trimCRLF(header))
		if !ok {
			req.Status.Fail(400, "Bad Request",
				fmt.Sprintf("HTTP message header badly formatted '%s'", trimCRLF(header)))
			logger.Debug("bad header", zap.String("header", trimCRLF(header)))
			continue
		}
		if strings.EqualFold(name, "content-length") {
			size, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || size < 0 {
				req.Status.Fail(400, "Bad Request",
					fmt.Sprintf("Invalid content-length '%s'", strings.TrimSpace(value)))
				continue
			}
			req.bodySize = size
		}
	}
	if !req.Status.OK() {
		return req
	}

	// A GET carries no usable body; consume and discard it.
	stream.Ignore(req.bodySize)

	logger.Debug("request",
		zap.String("method", req.Method),
		zap.String("uri", req.URI),
		zap.String("version", req.Version),
		zap.Int("body", req.bodySize))
	return req
}

// splitRequestLine splits on single spaces into (method, URI, version). Any
// missing or empty field comes back empty.
func splitRequestLine(line string) (method, uri, version string) {
	line = trimCRLF(line)

	sep1 := strings.IndexByte(line, ' ')
	if sep1 < 0 {
		return line, "", ""
	}
	rest := line[sep1+1:]
	sep2 := strings.IndexByte(rest, ' ')
	if sep2 < 0 {
		return line[:sep1], rest, ""
	}
	return line[:sep1], rest[:sep2], rest[sep2+1:]
}

// splitHeader splits on the first ':'. The value keeps its bytes verbatim;
// names are only case-folded at the point of recognition.
func splitHeader(header string) (name, value string, ok bool) {
	sep := strings.IndexByte(header, ':')
	if sep < 0 {
		return header, "", false
	}
	return header[:sep], header[sep+1:], true
}

func trimCRLF(s string) string {
	return strings.TrimSuffix(s, "\r\n")
}
