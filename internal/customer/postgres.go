package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var dbTracer = otel.Tracer("postgres")

// PostgresDirectory reads customers from the customers table
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := d.DisplayName(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *PostgresDirectory) DisplayName(ctx context.Context, id int64) (string, error) {
	ctx, span := dbTracer.Start(ctx, "postgres.select_customer",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "customers"),
			attribute.Int64("customer.id", id),
		))
	defer span.End()

	var name string
	err := d.db.QueryRowContext(ctx, `SELECT name FROM customers WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to load customer %d: %w", id, err)
	}
	return name, nil
}
