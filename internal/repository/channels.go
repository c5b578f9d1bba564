package repository

import (
	"context"
	"fmt"

	"github.com/bsforge/collector/internal/collector"
	"github.com/bsforge/collector/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChannelRepo struct{ db *pgxpool.Pool }

func NewChannelRepo(db *pgxpool.Pool) *ChannelRepo { return &ChannelRepo{db} }

const channelColumns = `id, name, config_yaml, enabled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*model.Channel, error) {
	var c model.Channel
	if err := row.Scan(&c.ID, &c.Name, &c.ConfigYAML, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapDBError(err)
	}
	return &c, nil
}

func (r *ChannelRepo) Get(ctx context.Context, id string) (*model.Channel, error) {
	return scanChannel(r.db.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
}

func (r *ChannelRepo) GetByName(ctx context.Context, name string) (*model.Channel, error) {
	return scanChannel(r.db.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE name = $1`, name))
}

func (r *ChannelRepo) List(ctx context.Context) ([]model.Channel, error) {
	return r.list(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY name`)
}

func (r *ChannelRepo) ListEnabled(ctx context.Context) ([]model.Channel, error) {
	return r.list(ctx, `SELECT `+channelColumns+` FROM channels WHERE enabled = true ORDER BY name`)
}

func (r *ChannelRepo) list(ctx context.Context, query string) ([]model.Channel, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Upsert creates or replaces a channel by name. The YAML is parsed first
// so a channel that could never run is not stored.
func (r *ChannelRepo) Upsert(ctx context.Context, name, configYAML string, enabled bool) (*model.Channel, error) {
	if _, err := collector.ParseChannelConfig([]byte(configYAML)); err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}
	return scanChannel(r.db.QueryRow(ctx, `
		INSERT INTO channels (name, config_yaml, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET config_yaml = EXCLUDED.config_yaml,
		    enabled = EXCLUDED.enabled,
		    updated_at = NOW()
		RETURNING `+channelColumns,
		name, configYAML, enabled,
	))
}

// Delete removes the channel; its topics go with it.
func (r *ChannelRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
