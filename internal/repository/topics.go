package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bsforge/collector/internal/lifecycle"
	"github.com/bsforge/collector/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TopicRepo struct{ db *pgxpool.Pool }

func NewTopicRepo(db *pgxpool.Pool) *TopicRepo { return &TopicRepo{db} }

const topicColumns = `id, channel_id, source_id, title_original, title_translated, title_normalized,
	summary, source_url, categories, keywords, entities, language,
	score_source, score_freshness, score_trend, score_relevance, score_total,
	status, published_at, expires_at, content_hash, created_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func scanTopic(row rowScanner) (*model.Topic, error) {
	var t model.Topic
	var status string
	if err := row.Scan(
		&t.ID, &t.ChannelID, &t.SourceID, &t.TitleOriginal, &t.TitleTranslated, &t.TitleNormalized,
		&t.Summary, &t.SourceURL, &t.Categories, &t.Keywords, entitiesScanner{&t.Entities}, &t.Language,
		&t.ScoreSource, &t.ScoreFreshness, &t.ScoreTrend, &t.ScoreRelevance, &t.ScoreTotal,
		&status, &t.PublishedAt, &t.ExpiresAt, &t.ContentHash, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, mapDBError(err)
	}
	t.Status = model.TopicStatus(status)
	return &t, nil
}

// SaveNew inserts the batch in one transaction. Hashes already stored for
// the channel, and repeats within the batch, are skipped; a row that a
// concurrent run inserted first is skipped by ON CONFLICT instead of
// aborting the transaction. Only inserted topics are returned.
func (r *TopicRepo) SaveNew(ctx context.Context, channelID string, topics []model.Topic) ([]model.Topic, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	hashes := make([]string, len(topics))
	for i, t := range topics {
		hashes[i] = t.ContentHash
	}
	rows, err := tx.Query(ctx, `
		SELECT content_hash FROM topics
		WHERE channel_id = $1 AND content_hash = ANY($2)`, channelID, hashes)
	if err != nil {
		return nil, err
	}
	skip := map[string]bool{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, err
		}
		skip[h] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var saved []model.Topic
	for _, t := range topics {
		if skip[t.ContentHash] {
			continue
		}
		skip[t.ContentHash] = true

		entities, err := entitiesJSON(t.Entities)
		if err != nil {
			return nil, fmt.Errorf("encode entities: %w", err)
		}
		var id string
		err = tx.QueryRow(ctx, `
			INSERT INTO topics (
				id, channel_id, source_id, title_original, title_translated, title_normalized,
				summary, source_url, categories, keywords, entities, language,
				score_source, score_freshness, score_trend, score_relevance, score_total,
				status, published_at, expires_at, content_hash, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
			)
			ON CONFLICT (channel_id, content_hash) DO NOTHING
			RETURNING id`,
			t.ID, channelID, t.SourceID, t.TitleOriginal, t.TitleTranslated, t.TitleNormalized,
			t.Summary, t.SourceURL, t.Categories, t.Keywords, string(entities), t.Language,
			t.ScoreSource, t.ScoreFreshness, t.ScoreTrend, t.ScoreRelevance, t.ScoreTotal,
			string(t.Status), t.PublishedAt, t.ExpiresAt, t.ContentHash, t.CreatedAt, t.UpdatedAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, mapDBError(err)
		}
		t.ChannelID = channelID
		saved = append(saved, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit topics: %w", err)
	}
	return saved, nil
}

type TopicListParams struct {
	ChannelID string
	Status    string
	MinScore  *int
	Limit     int
	Offset    int
}

func (p TopicListParams) where() sq.And {
	conds := sq.And{}
	if p.ChannelID != "" {
		conds = append(conds, sq.Eq{"channel_id": p.ChannelID})
	}
	if p.Status != "" {
		conds = append(conds, sq.Eq{"status": p.Status})
	}
	if p.MinScore != nil {
		conds = append(conds, sq.GtOrEq{"score_total": *p.MinScore})
	}
	return conds
}

// List returns topics ordered by score, best first.
func (r *TopicRepo) List(ctx context.Context, p TopicListParams) (*model.TopicListResponse, error) {
	if p.Status != "" && !lifecycle.IsTopicStatus(p.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, p.Status)
	}
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("topics").Where(p.where()).ToSql()
	if err != nil {
		return nil, err
	}
	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, err
	}

	query, args, err := psql.Select(topicColumns).From("topics").Where(p.where()).
		OrderBy("score_total DESC", "created_at DESC", "id").
		Limit(uint64(limit)).Offset(uint64(max(p.Offset, 0))).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &model.TopicListResponse{Items: []model.Topic{}, Total: total}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, *t)
	}
	return out, rows.Err()
}

func (r *TopicRepo) Get(ctx context.Context, id string) (*model.Topic, error) {
	return scanTopic(r.db.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id))
}

// UpdateStatus locks the row, checks the move against the topic lifecycle
// and writes the new status. Illegal moves return a
// *lifecycle.InvalidTransitionError and leave the row untouched.
func (r *TopicRepo) UpdateStatus(ctx context.Context, id string, target model.TopicStatus) (*model.Topic, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current string
	if err := tx.QueryRow(ctx, `SELECT status FROM topics WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		return nil, mapDBError(err)
	}
	m := lifecycle.TopicMachineAt(model.TopicStatus(current))
	if err := m.Transition(target); err != nil {
		return nil, err
	}

	t, err := scanTopic(tx.QueryRow(ctx, `
		UPDATE topics SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+topicColumns, string(m.Current()), id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// ExpireStale moves every topic past its expiry to expired, provided its
// current status allows that move. It returns the number of rows changed.
func (r *TopicRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	from := lifecycle.StatesAllowing(lifecycle.TopicTable, model.TopicExpired)
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE topics SET status = $1, updated_at = NOW()
		WHERE expires_at <= $2 AND status = ANY($3)`,
		string(model.TopicExpired), now, statuses)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
