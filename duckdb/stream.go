package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oorabona/duckdialect"
)

const (
	defaultChunkSize   = 2048
	defaultChunkBuffer = 4
)

// StreamOption configures Driver.Stream.
type StreamOption func(*streamConfig)

type streamConfig struct {
	chunkSize int
	buffer    int
}

// WithChunkSize caps how many rows are batched into one chunk.
func WithChunkSize(n int) StreamOption {
	return func(c *streamConfig) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithChunkBuffer sets how many decoded chunks may queue between the
// reader and the consumer before the reader blocks.
func WithChunkBuffer(n int) StreamOption {
	return func(c *streamConfig) {
		if n >= 0 {
			c.buffer = n
		}
	}
}

// ColumnInfo describes one column of a streamed result set.
type ColumnInfo struct {
	Name     string
	Type     string // Database type name as reported by the engine.
	Nullable bool
}

// StreamStats summarizes a finished stream.
type StreamStats struct {
	Rows    int64
	Elapsed time.Duration
}

// Stream is an incrementally consumed result set. Rows are read and
// normalized by a background goroutine and handed to the consumer in
// chunks, so large results never materialize in memory at once.
type Stream struct {
	columns []ColumnInfo
	ch      chan []map[string]any
	g       *errgroup.Group
	cancel  context.CancelFunc
	started time.Time

	rows    atomic.Int64
	once    sync.Once
	err     error
	elapsed time.Duration
}

// Stream executes a query and returns its result set as a Stream. The
// context governs the whole read: canceling it stops the background reader.
func (d *Driver) Stream(ctx context.Context, query string, args []any, opts ...StreamOption) (*Stream, error) {
	cfg := streamConfig{chunkSize: defaultChunkSize, buffer: defaultChunkBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	q, nargs, err := rewriteQuery(query, args)
	if err != nil {
		return nil, duckdialect.NewQueryError(query, args, err)
	}
	cctx, cancel := context.WithCancel(ctx)
	started := time.Now()
	rows, err := d.QueryContext(cctx, q, nargs...)
	if err != nil {
		cancel()
		return nil, duckdialect.NewQueryError(query, args, err)
	}
	columns, types, info, err := streamColumns(rows)
	if err != nil {
		cancel()
		return nil, errors.Join(fmt.Errorf("duckdb: stream: %w", err), rows.Close())
	}
	g, gctx := errgroup.WithContext(cctx)
	s := &Stream{
		columns: info,
		ch:      make(chan []map[string]any, cfg.buffer),
		g:       g,
		cancel:  cancel,
		started: started,
	}
	g.Go(func() error {
		defer rows.Close()
		defer close(s.ch)
		batch := make([]map[string]any, 0, cfg.chunkSize)
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return fmt.Errorf("duckdb: stream: %w", err)
			}
			row, err := decodeRow(columns, types, values)
			if err != nil {
				return err
			}
			batch = append(batch, row)
			s.rows.Add(1)
			if len(batch) == cfg.chunkSize {
				select {
				case s.ch <- batch:
					batch = make([]map[string]any, 0, cfg.chunkSize)
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("duckdb: stream: %w", err)
		}
		if len(batch) > 0 {
			select {
			case s.ch <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	return s, nil
}

func streamColumns(rows *sql.Rows) (columns, types []string, info []ColumnInfo, err error) {
	columns, err = rows.Columns()
	if err != nil {
		return nil, nil, nil, err
	}
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, nil, err
	}
	types = make([]string, len(cts))
	info = make([]ColumnInfo, len(cts))
	for i, ct := range cts {
		nullable, _ := ct.Nullable()
		types[i] = ct.DatabaseTypeName()
		info[i] = ColumnInfo{Name: ct.Name(), Type: types[i], Nullable: nullable}
	}
	return columns, types, info, nil
}

// Next returns the next chunk of rows. It returns io.EOF once the result
// set is exhausted, or the reader's error if it failed.
func (s *Stream) Next(ctx context.Context) ([]map[string]any, error) {
	select {
	case chunk, ok := <-s.ch:
		if !ok {
			if err := s.wait(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Columns describes the result set.
func (s *Stream) Columns() []ColumnInfo {
	return s.columns
}

// Stats reports the rows read and the elapsed time. Counts are settled
// once the stream has ended.
func (s *Stream) Stats() StreamStats {
	elapsed := s.elapsed
	if elapsed == 0 {
		elapsed = time.Since(s.started)
	}
	return StreamStats{Rows: s.rows.Load(), Elapsed: elapsed}
}

// Err returns the reader's terminal error, if any. It is settled once
// Next has returned io.EOF or Close has been called. Like sql.Rows.Err,
// it reports nil for a stream that was merely closed early.
func (s *Stream) Err() error {
	if errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}

// Close stops the reader and releases the underlying rows. Closing an
// exhausted or already-closed stream is a no-op.
func (s *Stream) Close() error {
	s.cancel()
	err := s.wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Stream) wait() error {
	s.once.Do(func() {
		s.err = s.g.Wait()
		s.elapsed = time.Since(s.started)
		s.cancel()
	})
	return s.err
}
