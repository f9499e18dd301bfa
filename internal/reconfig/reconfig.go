// Package reconfig implements the live reconfiguration protocol: a stream of
// newline-delimited JSON requests, each answered by one response line.
//
// A request looks like
//
//	{"map": {"path": "/x", "underlying_path": "/host/x", "writable": false}}
//
// and is answered with "OK" or "ERROR: <message>".
package reconfig

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"sandboxfs/internal/fs"
	"sandboxfs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("reconfig")

	errEmptyRequest = errors.New("request contains no operation")
)

// maxRequestSize bounds a single request line.
const maxRequestSize = 1 << 20

// Mapper applies a mapping to a live file system.
type Mapper interface {
	Map(m fs.Mapping) error
}

// Request is a single reconfiguration request.
type Request struct {
	Map *fs.Mapping `json:"map,omitempty"`
}

// Run reads requests from r, applies them to mapper and writes a response
// line for each to w. It returns nil once r is exhausted. Malformed requests
// are answered with an error and do not stop the loop; failing to read r or
// to write w does.
func Run(ctx context.Context, r io.Reader, w io.Writer, mapper Mapper) error {
	logger.Info("Accepting reconfiguration requests")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := "OK"
		if err := handle(line, mapper); err != nil {
			logger.Warn("Reconfiguration request failed: %v", err)
			resp = "ERROR: " + err.Error()
		}
		if _, err := fmt.Fprintln(out, resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	logger.Info("Reconfiguration stream closed")
	return nil
}

func handle(line []byte, mapper Mapper) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()

	var req Request
	if err := dec.Decode(&req); err != nil {
		return fmt.Errorf("malformed request: %w", err)
	}
	if req.Map == nil {
		return errEmptyRequest
	}

	logger.Debug("Applying mapping %s", *req.Map)
	return mapper.Map(*req.Map)
}
