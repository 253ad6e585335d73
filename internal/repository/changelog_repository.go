package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

// ChangeLogRepository appends to and reads the audit trail. There is
// deliberately no update or delete.
type ChangeLogRepository struct {
	db *sqlx.DB
}

func NewChangeLogRepository(db *sqlx.DB) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

func (r *ChangeLogRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Record appends one entry, inside exec's transaction when exec is a tx.
func (r *ChangeLogRepository) Record(ctx context.Context, exec sqlx.ExtContext, entry *models.ChangeLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}
	const query = `INSERT INTO change_logs (id, ts, actor, entity, entity_id, field, old_value, new_value, reason)
VALUES (:id, :ts, :actor, :entity, :entity_id, :field, :old_value, :new_value, :reason)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("record change log: %w", err)
	}
	return nil
}

func changeLogWhere(filter models.ChangeLogFilter) (string, []interface{}) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.From != nil {
		conditions = append(conditions, "ts >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conditions = append(conditions, "ts <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Actor != "" {
		conditions = append(conditions, "LOWER(COALESCE(actor, '')) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Actor)+"%")
	}
	if filter.Entity != "" {
		conditions = append(conditions, "LOWER(entity) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Entity)+"%")
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	return " FROM change_logs WHERE " + strings.Join(conditions, " AND "), args
}

// List returns entries newest first.
func (r *ChangeLogRepository) List(ctx context.Context, filter models.ChangeLogFilter) ([]models.ChangeLogEntry, int, error) {
	where, args := changeLogWhere(filter)
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := r.db.Rebind(fmt.Sprintf(`SELECT id, ts, actor, entity, entity_id, field, old_value, new_value, reason%s ORDER BY ts DESC, id LIMIT %d OFFSET %d`, where, size, offset))
	var entries []models.ChangeLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list change logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*)"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count change logs: %w", err)
	}
	return entries, total, nil
}

// Stats counts entries per entity and per actor under the same filter as List.
func (r *ChangeLogRepository) Stats(ctx context.Context, filter models.ChangeLogFilter) (*models.ChangeLogStats, error) {
	where, args := changeLogWhere(filter)
	stats := &models.ChangeLogStats{}

	if err := r.db.GetContext(ctx, &stats.Total, r.db.Rebind("SELECT COUNT(*)"+where), args...); err != nil {
		return nil, fmt.Errorf("count change logs: %w", err)
	}

	byEntity := r.db.Rebind("SELECT entity AS key, COUNT(*) AS count" + where + " GROUP BY entity ORDER BY count DESC, key")
	if err := r.db.SelectContext(ctx, &stats.ByEntity, byEntity, args...); err != nil {
		return nil, fmt.Errorf("change logs by entity: %w", err)
	}

	byActor := r.db.Rebind("SELECT COALESCE(actor, '') AS key, COUNT(*) AS count" + where + " GROUP BY COALESCE(actor, '') ORDER BY count DESC, key")
	if err := r.db.SelectContext(ctx, &stats.ByActor, byActor, args...); err != nil {
		return nil, fmt.Errorf("change logs by actor: %w", err)
	}
	return stats, nil
}
