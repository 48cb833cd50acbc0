package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentfront/agentfront/pkg/models"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store over a SQLite file. Instance writes are
// single transactions; child rows are removed by ON DELETE CASCADE.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the instance store at path and
// runs the schema migration.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: db path cannot be empty")
	}

	// modernc's driver only honors _pragma-style query parameters.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_instances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		typingmind_agent_id TEXT NOT NULL,
		api_key TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS instance_domains (
		instance_id TEXT NOT NULL REFERENCES agent_instances(id) ON DELETE CASCADE,
		domain TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instance_domains ON instance_domains(instance_id);

	CREATE TABLE IF NOT EXISTS instance_rate_limits (
		instance_id TEXT PRIMARY KEY REFERENCES agent_instances(id) ON DELETE CASCADE,
		messages_per_hour INTEGER NOT NULL,
		messages_per_session INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS instance_features (
		instance_id TEXT PRIMARY KEY REFERENCES agent_instances(id) ON DELETE CASCADE,
		image_upload INTEGER NOT NULL DEFAULT 0,
		markdown INTEGER NOT NULL DEFAULT 1,
		persist_session INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS instance_themes (
		instance_id TEXT PRIMARY KEY REFERENCES agent_instances(id) ON DELETE CASCADE,
		primary_color TEXT NOT NULL,
		position TEXT NOT NULL,
		width INTEGER NOT NULL,
		embed_mode TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ReadInstance assembles the denormalized request-path view: one join
// query for the instance plus its singleton child rows, one query for the
// domain set. Missing child rows yield the documented defaults.
func (s *SQLiteStore) ReadInstance(ctx context.Context, id string) (*models.InstanceView, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT i.id, i.name, i.typingmind_agent_id, i.api_key, i.created_at, i.updated_at,
		       r.messages_per_hour, r.messages_per_session,
		       f.image_upload, f.markdown, f.persist_session,
		       t.primary_color, t.position, t.width, t.embed_mode
		FROM agent_instances i
		LEFT JOIN instance_rate_limits r ON r.instance_id = i.id
		LEFT JOIN instance_features f ON f.instance_id = i.id
		LEFT JOIN instance_themes t ON t.instance_id = i.id
		WHERE i.id = ?
	`, id)

	var (
		view       models.InstanceView
		apiKey     sql.NullString
		createdAt  int64
		updatedAt  int64
		perHour    sql.NullInt64
		perSession sql.NullInt64
		imgUpload  sql.NullInt64
		markdown   sql.NullInt64
		persist    sql.NullInt64
		color      sql.NullString
		position   sql.NullString
		width      sql.NullInt64
		embedMode  sql.NullString
	)
	err := row.Scan(&view.ID, &view.Name, &view.TypingMindAgentID, &apiKey, &createdAt, &updatedAt,
		&perHour, &perSession,
		&imgUpload, &markdown, &persist,
		&color, &position, &width, &embedMode)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "instance", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: read instance %q: %w", id, err)
	}

	view.APIKey = apiKey.String
	view.CreatedAt = time.UnixMilli(createdAt).UTC()
	view.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	view.RateLimits = models.DefaultRateLimits()
	if perHour.Valid {
		view.RateLimits.MessagesPerHour = int(perHour.Int64)
	}
	if perSession.Valid {
		view.RateLimits.MessagesPerSession = int(perSession.Int64)
	}

	// Features stored as 0/1 integers; coercion is explicit and absent
	// rows read as all-false.
	view.Features = models.Features{
		ImageUpload:    imgUpload.Valid && imgUpload.Int64 != 0,
		Markdown:       markdown.Valid && markdown.Int64 != 0,
		PersistSession: persist.Valid && persist.Int64 != 0,
	}

	view.Theme = models.DefaultTheme()
	if color.Valid {
		view.Theme.PrimaryColor = color.String
	}
	if position.Valid {
		view.Theme.Position = position.String
	}
	if width.Valid {
		view.Theme.Width = int(width.Int64)
	}
	if embedMode.Valid {
		view.Theme.EmbedMode = embedMode.String
	}

	view.Domains, err = s.readDomains(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) readDomains(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT domain FROM instance_domains WHERE instance_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("store: read domains for %q: %w", id, err)
	}
	defer rows.Close()

	domains := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("store: scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// ListInstances returns one summary per instance with its domain count,
// newest first.
func (s *SQLiteStore) ListInstances(ctx context.Context) ([]models.InstanceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.typingmind_agent_id, COUNT(d.domain), i.created_at
		FROM agent_instances i
		LEFT JOIN instance_domains d ON d.instance_id = i.id
		GROUP BY i.id
		ORDER BY i.created_at DESC, i.rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list instances: %w", err)
	}
	defer rows.Close()

	summaries := []models.InstanceSummary{}
	for rows.Next() {
		var (
			sum       models.InstanceSummary
			createdAt int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.TypingMindAgentID, &sum.DomainCount, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan summary: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(createdAt).UTC()
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// ReadFull returns the instance with its unjoined child rows for edit
// forms; child pointers are nil when no row exists.
func (s *SQLiteStore) ReadFull(ctx context.Context, id string) (*models.FullInstance, error) {
	var (
		full      models.FullInstance
		apiKey    sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, typingmind_agent_id, api_key, created_at, updated_at
		FROM agent_instances WHERE id = ?
	`, id).Scan(&full.Instance.ID, &full.Instance.Name, &full.Instance.TypingMindAgentID,
		&apiKey, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "instance", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: read full %q: %w", id, err)
	}
	full.Instance.APIKey = apiKey.String
	full.Instance.CreatedAt = time.UnixMilli(createdAt).UTC()
	full.Instance.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if full.Domains, err = s.readDomains(ctx, s.db, id); err != nil {
		return nil, err
	}

	var rl models.RateLimitPolicy
	err = s.db.QueryRowContext(ctx, `
		SELECT messages_per_hour, messages_per_session FROM instance_rate_limits WHERE instance_id = ?
	`, id).Scan(&rl.MessagesPerHour, &rl.MessagesPerSession)
	if err == nil {
		full.RateLimits = &rl
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: read rate limits %q: %w", id, err)
	}

	var imgUpload, markdown, persist int
	err = s.db.QueryRowContext(ctx, `
		SELECT image_upload, markdown, persist_session FROM instance_features WHERE instance_id = ?
	`, id).Scan(&imgUpload, &markdown, &persist)
	if err == nil {
		full.Features = &models.Features{
			ImageUpload:    imgUpload != 0,
			Markdown:       markdown != 0,
			PersistSession: persist != 0,
		}
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: read features %q: %w", id, err)
	}

	var th models.Theme
	err = s.db.QueryRowContext(ctx, `
		SELECT primary_color, position, width, embed_mode FROM instance_themes WHERE instance_id = ?
	`, id).Scan(&th.PrimaryColor, &th.Position, &th.Width, &th.EmbedMode)
	if err == nil {
		full.Theme = &th
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: read theme %q: %w", id, err)
	}

	return &full, nil
}

// CreateInstance inserts the instance and all child rows in one
// transaction, applying defaults for any omitted settings. Partial
// success is not possible.
func (s *SQLiteStore) CreateInstance(ctx context.Context, cfg *models.InstanceConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin create: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if err := insertInstance(ctx, tx, cfg, now, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit create %q: %w", cfg.ID, err)
	}
	return nil
}

// insertInstance writes the instance row plus all child rows inside tx.
// Shared by create and clone.
func insertInstance(ctx context.Context, tx *sql.Tx, cfg *models.InstanceConfig, createdAt, updatedAt int64) error {
	var apiKey any
	if cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_instances (id, name, typingmind_agent_id, api_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cfg.ID, cfg.Name, cfg.TypingMindAgentID, apiKey, createdAt, updatedAt)
	if err != nil {
		return fmt.Errorf("store: insert instance %q: %w", cfg.ID, err)
	}

	for _, d := range cfg.Domains {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instance_domains (instance_id, domain) VALUES (?, ?)
		`, cfg.ID, d); err != nil {
			return fmt.Errorf("store: insert domain %q: %w", d, err)
		}
	}

	rl := models.DefaultRateLimits()
	if cfg.RateLimits != nil {
		rl = *cfg.RateLimits
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO instance_rate_limits (instance_id, messages_per_hour, messages_per_session)
		VALUES (?, ?, ?)
	`, cfg.ID, rl.MessagesPerHour, rl.MessagesPerSession); err != nil {
		return fmt.Errorf("store: insert rate limits %q: %w", cfg.ID, err)
	}

	ft := models.Features{Markdown: true, ImageUpload: false, PersistSession: true}
	if cfg.Features != nil {
		ft = *cfg.Features
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO instance_features (instance_id, image_upload, markdown, persist_session)
		VALUES (?, ?, ?, ?)
	`, cfg.ID, boolInt(ft.ImageUpload), boolInt(ft.Markdown), boolInt(ft.PersistSession)); err != nil {
		return fmt.Errorf("store: insert features %q: %w", cfg.ID, err)
	}

	th := models.DefaultTheme()
	if cfg.Theme != nil {
		th = *cfg.Theme
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO instance_themes (instance_id, primary_color, position, width, embed_mode)
		VALUES (?, ?, ?, ?, ?)
	`, cfg.ID, th.PrimaryColor, th.Position, th.Width, th.EmbedMode); err != nil {
		return fmt.Errorf("store: insert theme %q: %w", cfg.ID, err)
	}

	return nil
}

// UpdateInstance updates the instance row, replaces the domain set
// (delete-then-insert), and upserts the child rows, all in one
// transaction. The instance id itself is immutable.
func (s *SQLiteStore) UpdateInstance(ctx context.Context, id string, cfg *models.InstanceConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin update: %w", err)
	}
	defer tx.Rollback()

	var apiKey any
	if cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE agent_instances
		SET name = ?, typingmind_agent_id = ?, api_key = ?, updated_at = ?
		WHERE id = ?
	`, cfg.Name, cfg.TypingMindAgentID, apiKey, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: update instance %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "instance", Key: id}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM instance_domains WHERE instance_id = ?`, id); err != nil {
		return fmt.Errorf("store: clear domains %q: %w", id, err)
	}
	for _, d := range cfg.Domains {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instance_domains (instance_id, domain) VALUES (?, ?)
		`, id, d); err != nil {
			return fmt.Errorf("store: insert domain %q: %w", d, err)
		}
	}

	if cfg.RateLimits != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instance_rate_limits (instance_id, messages_per_hour, messages_per_session)
			VALUES (?, ?, ?)
			ON CONFLICT (instance_id) DO UPDATE SET
				messages_per_hour = excluded.messages_per_hour,
				messages_per_session = excluded.messages_per_session
		`, id, cfg.RateLimits.MessagesPerHour, cfg.RateLimits.MessagesPerSession); err != nil {
			return fmt.Errorf("store: upsert rate limits %q: %w", id, err)
		}
	}

	if cfg.Features != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instance_features (instance_id, image_upload, markdown, persist_session)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (instance_id) DO UPDATE SET
				image_upload = excluded.image_upload,
				markdown = excluded.markdown,
				persist_session = excluded.persist_session
		`, id, boolInt(cfg.Features.ImageUpload), boolInt(cfg.Features.Markdown), boolInt(cfg.Features.PersistSession)); err != nil {
			return fmt.Errorf("store: upsert features %q: %w", id, err)
		}
	}

	if cfg.Theme != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instance_themes (instance_id, primary_color, position, width, embed_mode)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (instance_id) DO UPDATE SET
				primary_color = excluded.primary_color,
				position = excluded.position,
				width = excluded.width,
				embed_mode = excluded.embed_mode
		`, id, cfg.Theme.PrimaryColor, cfg.Theme.Position, cfg.Theme.Width, cfg.Theme.EmbedMode); err != nil {
			return fmt.Errorf("store: upsert theme %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit update %q: %w", id, err)
	}
	return nil
}

// DeleteInstance removes the instance row; child rows cascade. Deleting
// an absent instance is a no-op.
func (s *SQLiteStore) DeleteInstance(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_instances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete instance %q: %w", id, err)
	}
	return nil
}

// CloneInstance copies the source instance under a new id with a new
// display name, carrying the agent id, credential, domain set, and child
// rows. Both copies are independently mutable afterwards.
func (s *SQLiteStore) CloneInstance(ctx context.Context, sourceID, newID, newName string) error {
	src, err := s.ReadFull(ctx, sourceID)
	if err != nil {
		return err
	}

	cfg := &models.InstanceConfig{
		ID:                newID,
		Name:              newName,
		TypingMindAgentID: src.Instance.TypingMindAgentID,
		APIKey:            src.Instance.APIKey,
		Domains:           src.Domains,
		RateLimits:        src.RateLimits,
		Features:          src.Features,
		Theme:             src.Theme,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin clone: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if err := insertInstance(ctx, tx, cfg, now, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit clone %q: %w", newID, err)
	}
	return nil
}

// Ping checks if the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
