package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xela07ax/opswatch/internal/audit"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

type TrailRepo struct {
	db *sql.DB
}

func NewTrailRepo(connString string) *TrailRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &TrailRepo{db: db}
}

func (r *TrailRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *TrailRepo) Close() error {
	return r.db.Close()
}

func (r *TrailRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице incident_trail
	numFields := 9
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		details, _ := json.Marshal(e.Details)

		vals = append(vals,
			e.ID, e.IncidentID, e.Kind, e.Actor,
			e.Severity, e.Metric, e.Value, details, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO incident_trail (id, incident_id, kind, actor, severity, metric, value, details, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// ListByIncident возвращает хронологию событий инцидента (для операторского API)
func (r *TrailRepo) ListByIncident(ctx context.Context, incidentID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, incident_id, kind, actor, severity, metric, value, details, timestamp
		 FROM incident_trail WHERE incident_id = $1 ORDER BY timestamp ASC LIMIT $2`,
		incidentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query incident trail: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var details []byte
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Kind, &e.Actor,
			&e.Severity, &e.Metric, &e.Value, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trail row: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
