package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/irfndi/stock-monitor/internal/database"

// TracedPool wraps a DatabasePool and records a span and a debug log line per statement.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
	logger *logrus.Logger
}

// NewTracedPool creates a traced wrapper around pool.
func NewTracedPool(pool DatabasePool, logger *logrus.Logger) *TracedPool {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TracedPool{
		pool:   pool,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
}

func (p *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := p.start(ctx, "db.query", sql)
	defer span.End()

	start := time.Now()
	rows, err := p.pool.Query(ctx, sql, args...)
	p.finish(span, "query", sql, start, -1, err)
	return rows, err
}

func (p *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := p.start(ctx, "db.query_row", sql)
	defer span.End()

	start := time.Now()
	row := p.pool.QueryRow(ctx, sql, args...)
	p.finish(span, "query_row", sql, start, -1, nil)
	return row
}

func (p *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := p.start(ctx, "db.exec", sql)
	defer span.End()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, sql, args...)
	p.finish(span, "exec", sql, start, tag.RowsAffected(), err)
	return tag, err
}

// Begin starts a transaction. Statements inside the transaction are not traced individually.
func (p *TracedPool) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := p.start(ctx, "db.begin", "")
	defer span.End()

	start := time.Now()
	tx, err := p.pool.Begin(ctx)
	p.finish(span, "begin", "", start, -1, err)
	return tx, err
}

func (p *TracedPool) start(ctx context.Context, name, sql string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.system", "postgresql")}
	if sql != "" {
		attrs = append(attrs, attribute.String("db.statement", summarizeSQL(sql)))
	}
	return p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func (p *TracedPool) finish(span trace.Span, op, sql string, start time.Time, rows int64, err error) {
	duration := time.Since(start)
	if rows >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", rows))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	entry := p.logger.WithFields(logrus.Fields{
		"operation":   op,
		"statement":   summarizeSQL(sql),
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("Database operation failed")
		return
	}
	entry.Debug("Database operation")
}

// summarizeSQL collapses whitespace and truncates long statements for span attributes.
func summarizeSQL(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
