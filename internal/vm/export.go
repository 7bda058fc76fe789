package vm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rtm0/agage/internal/ncio"
)

// Exporter streams the records of archive files into Victoria Metrics.
type Exporter struct {
	logger        *zap.Logger
	concurrency   int
	recsPerInsert int
}

// NewExporter creates an exporter posting batches of recsPerInsert records
// over up to concurrency connections.
func NewExporter(logger *zap.Logger, concurrency, recsPerInsert int) *Exporter {
	return &Exporter{
		logger:        logger,
		concurrency:   max(concurrency, 1),
		recsPerInsert: max(recsPerInsert, 1),
	}
}

// Export sends every record of the scanner through the client.
func (e *Exporter) Export(ctx context.Context, cli *Client, s *ncio.Scanner) error {
	e.logger.Info("file summary", s.Summary()...)

	g, ctx := errgroup.WithContext(ctx)
	recsCh := make(chan []ncio.Record)
	var inserted atomic.Int64
	total := float64(max(s.TotalRecCount(), 1))
	start := time.Now()

	for range e.concurrency {
		g.Go(func() error {
			for recs := range recsCh {
				n := len(recs)
				for begin := 0; begin < n; begin += e.recsPerInsert {
					if err := cli.Insert(ctx, recs[begin:min(begin+e.recsPerInsert, n)]); err != nil {
						return err
					}
				}
				done := inserted.Add(int64(n * cli.Metrics()))
				e.logger.Info("progress",
					zap.String("inserted", fmt.Sprintf("%.2f%%", 100*float64(done)/total)),
					zap.Duration("in", time.Since(start).Round(time.Second)))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(recsCh)
		for s.Scan() {
			select {
			case recsCh <- s.Records():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return s.Err()
	})
	return g.Wait()
}

// ExportFile opens an archive file and exports it, labelling the samples
// with the file's identifying attributes.
func (e *Exporter) ExportFile(ctx context.Context, path, insertURL, metricPrefix string, batch int) error {
	s, err := ncio.NewScanner(path, batch)
	if err != nil {
		return err
	}
	defer s.Close()
	cli, err := NewClient(e.logger, insertURL, e.concurrency, metricPrefix, s.Names(), s.Labels())
	if err != nil {
		return err
	}
	defer cli.Close()
	return e.Export(ctx, cli, s)
}
