package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

// StdioServer serves the MCP protocol over newline-delimited JSON-RPC
// messages, one per line. Each message is handled on its own goroutine
// so a slow query does not block the read loop; the write mutex keeps
// concurrent responses from interleaving. All diagnostics go to the
// logger (stderr); stdout carries protocol frames only.
type StdioServer struct {
	handler *Handler
	logger  *logger.Logger
	in      io.Reader
	out     io.Writer
	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewStdioServer creates a stdio transport over os.Stdin/os.Stdout.
func NewStdioServer(handler *Handler, log *logger.Logger) *StdioServer {
	return &StdioServer{
		handler: handler,
		logger:  log,
		in:      os.Stdin,
		out:     os.Stdout,
	}
}

// Run reads messages until EOF or context cancellation. In-flight
// handlers are drained before Run returns.
func (s *StdioServer) Run(ctx context.Context) error {
	defer s.wg.Wait()

	reader := bufio.NewReader(s.in)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if trimmed := strings.TrimSpace(line); trimmed != "" {
					s.handle(ctx, trimmed)
				}
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		s.handle(ctx, trimmed)
	}
}

func (s *StdioServer) handle(ctx context.Context, message string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(ctx, message)
	}()
}

func (s *StdioServer) dispatch(ctx context.Context, message string) {
	resp := s.handler.HandleRaw(ctx, []byte(message))
	if resp == nil {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.out.Write(append(resp, '\n')); err != nil && s.logger != nil {
		s.logger.Errorf("Failed to write response: %v", err)
	}
}
