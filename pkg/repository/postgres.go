package repository

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

// Postgres is a Repository on PostgreSQL with the pgvector extension.
type Postgres struct {
	pool      *pgxpool.Pool
	dimension int
}

type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
	// Migrate applies the embedded schema before connecting the pool.
	Migrate bool
}

func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, goerr.New("postgres dsn is required")
	}

	if cfg.Migrate {
		if err := migrate(ctx, cfg.DSN); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse postgres dsn")
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create postgres pool")
	}

	p := &Postgres{pool: pool}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	dim, err := p.columnDimension(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.dimension = dim

	return p, nil
}

func migrate(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to connect for migration", goerr.V("cause", err.Error()))
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return goerr.Wrap(err, "failed to apply schema")
	}
	return nil
}

// columnDimension reads the declared size of the embedding column; pgvector
// stores it as the type modifier.
func (p *Postgres) columnDimension(ctx context.Context) (int, error) {
	var dim int
	err := p.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'roadmap_items'::regclass AND attname = 'embedding'`).Scan(&dim)
	if err != nil {
		return 0, storeError(err, "failed to read embedding column dimension")
	}
	return dim, nil
}

func (p *Postgres) Dimension() int {
	return p.dimension
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to ping postgres", goerr.V("cause", err.Error()))
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// storeError marks connectivity failures as model.ErrStoreUnavailable and
// keeps server-side errors as they are.
func storeError(err error, msg string, opts ...goerr.Option) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) {
		return goerr.Wrap(err, msg, opts...)
	}
	opts = append(opts, goerr.V("cause", err.Error()))
	return goerr.Wrap(model.ErrStoreUnavailable, msg, opts...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const itemColumns = `id, title, description, status, release_date, products, platforms,
	cloud_instances, release_phase, modified_at, document_hash, embedding, created_at, updated_at`

func scanItem(row pgx.Row, extra ...any) (*model.RoadmapItem, error) {
	var (
		item   model.RoadmapItem
		status string
		vec    pgvector.Vector
	)
	dest := []any{
		&item.ID, &item.Title, &item.Description, &status, &item.ReleaseDate,
		&item.Products, &item.Platforms, &item.CloudInstances, &item.ReleasePhase,
		&item.ModifiedAt, &item.DocumentHash, &vec, &item.CreatedAt, &item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	item.Status = model.RoadmapStatus(status)
	item.Embedding = vec.Slice()
	return &item, nil
}

func (p *Postgres) UpsertRoadmapItem(ctx context.Context, item *model.RoadmapItem) error {
	if err := validateItem(item, p.dimension); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO roadmap_items (id, title, description, status, release_date, products, platforms,
			cloud_instances, release_phase, modified_at, document, document_hash, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			release_date = EXCLUDED.release_date,
			products = EXCLUDED.products,
			platforms = EXCLUDED.platforms,
			cloud_instances = EXCLUDED.cloud_instances,
			release_phase = EXCLUDED.release_phase,
			modified_at = EXCLUDED.modified_at,
			document = EXCLUDED.document,
			document_hash = EXCLUDED.document_hash,
			embedding = EXCLUDED.embedding,
			updated_at = now()`,
		item.ID, item.Title, item.Description, string(item.Status), item.ReleaseDate,
		nonNil(item.Products), nonNil(item.Platforms), nonNil(item.CloudInstances), item.ReleasePhase,
		item.ModifiedAt, item.Document(), item.DocumentHash, pgvector.NewVector(item.Embedding),
	)
	if err != nil {
		return storeError(err, "failed to upsert roadmap item", goerr.V("id", item.ID))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (p *Postgres) GetRoadmapItem(ctx context.Context, id int64) (*model.RoadmapItem, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM roadmap_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrRoadmapItemNotFound, "no such roadmap item", goerr.V("id", id))
	}
	if err != nil {
		return nil, storeError(err, "failed to get roadmap item", goerr.V("id", id))
	}
	return item, nil
}

func (p *Postgres) ListRoadmapItems(ctx context.Context, input ListRoadmapInput) ([]*model.RoadmapItem, error) {
	var start, end *time.Time
	if input.Window != nil {
		start, end = &input.Window.Start, &input.Window.End
	}
	var limit any
	if input.Limit > 0 {
		limit = input.Limit
	}

	rows, err := p.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM roadmap_items
		WHERE ($1::text = '' OR status = $1)
		  AND ($2::timestamptz IS NULL
		       OR (modified_at >= $2 AND modified_at < $3)
		       OR (release_date >= $2 AND release_date < $3))
		ORDER BY modified_at DESC, id
		OFFSET $4 LIMIT $5`,
		string(input.Status), start, end, input.Offset, limit,
	)
	if err != nil {
		return nil, storeError(err, "failed to list roadmap items")
	}
	defer rows.Close()

	var items []*model.RoadmapItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeError(err, "failed to scan roadmap item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "failed to iterate roadmap items")
	}
	return items, nil
}

// likePatterns turns filter terms into ILIKE substring patterns, or nil
// (SQL NULL) when there are none.
func likePatterns(terms []string) []string {
	var out []string
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, "%"+r.Replace(t)+"%")
		}
	}
	return out
}

func (p *Postgres) NearestNeighbors(ctx context.Context, vector []float32, k int, filter Filter) ([]*Neighbor, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}
	if len(vector) != p.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector has wrong dimension",
			goerr.V("expected", p.dimension), goerr.V("actual", len(vector)))
	}

	var statuses []string
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	args := []any{pgvector.NewVector(vector), statuses, likePatterns(filter.Products), likePatterns(filter.Platforms), k}
	if filter.IsZero() {
		return searchNeighbors(ctx, p.pool, args)
	}

	// The HNSW index is searched before the WHERE clause, so a selective
	// filter can leave fewer than k rows. Filtered searches scan exactly.
	var neighbors []*Neighbor
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET LOCAL enable_indexscan = off`); err != nil {
			return storeError(err, "failed to disable index scan")
		}
		var err error
		neighbors, err = searchNeighbors(ctx, tx, args)
		return err
	})
	if err != nil {
		return nil, err
	}
	return neighbors, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func searchNeighbors(ctx context.Context, q querier, args []any) ([]*Neighbor, error) {
	rows, err := q.Query(ctx, `
		SELECT `+itemColumns+`, 1 - (embedding <=> $1) AS similarity
		FROM roadmap_items
		WHERE ($2::text[] IS NULL OR status = ANY($2))
		  AND ($3::text[] IS NULL OR EXISTS (SELECT 1 FROM unnest(products) p WHERE p ILIKE ANY($3)))
		  AND ($4::text[] IS NULL OR EXISTS (SELECT 1 FROM unnest(platforms) p WHERE p ILIKE ANY($4)))
		ORDER BY embedding <=> $1, id
		LIMIT $5`, args...)
	if err != nil {
		return nil, storeError(err, "failed to search roadmap items")
	}
	defer rows.Close()

	var neighbors []*Neighbor
	for rows.Next() {
		var sim float64
		item, err := scanItem(rows, &sim)
		if err != nil {
			return nil, storeError(err, "failed to scan roadmap item")
		}
		neighbors = append(neighbors, &Neighbor{Item: item, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "failed to iterate roadmap items")
	}

	// 1 - distance can round distinct distances to the same similarity;
	// re-sort so that equal similarities are always ordered by ID.
	SortNeighbors(neighbors)
	return neighbors, nil
}

func (p *Postgres) RoadmapStats(ctx context.Context) (*model.RoadmapStats, error) {
	rows, err := p.pool.Query(ctx, `SELECT status, count(*) FROM roadmap_items GROUP BY status`)
	if err != nil {
		return nil, storeError(err, "failed to count roadmap items")
	}
	defer rows.Close()

	stats := &model.RoadmapStats{ByStatus: make(map[model.RoadmapStatus]int)}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeError(err, "failed to scan roadmap stats")
		}
		stats.ByStatus[model.RoadmapStatus(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "failed to iterate roadmap stats")
	}
	return stats, nil
}

const customerColumns = `name, description, products, priority, notes, created_at, updated_at`

func scanCustomer(row pgx.Row) (*model.Customer, error) {
	var (
		c        model.Customer
		priority string
	)
	if err := row.Scan(&c.Name, &c.Description, &c.Products, &priority, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Priority = model.Priority(priority)
	return &c, nil
}

func (p *Postgres) CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	c, err := normalizeCustomer(customer)
	if err != nil {
		return nil, err
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO customers (name, description, products, priority, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+customerColumns,
		c.Name, c.Description, nonNil(c.Products), string(c.Priority), c.Notes,
	)
	created, err := scanCustomer(row)
	if isUniqueViolation(err) {
		return nil, goerr.Wrap(model.ErrDuplicateCustomer, "customer already exists", goerr.V("name", c.Name))
	}
	if err != nil {
		return nil, storeError(err, "failed to create customer", goerr.V("name", c.Name))
	}
	return created, nil
}

func (p *Postgres) GetCustomer(ctx context.Context, name string) (*model.Customer, error) {
	name = strings.TrimSpace(name)
	row := p.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE name = $1`, name)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
	}
	if err != nil {
		return nil, storeError(err, "failed to get customer", goerr.V("name", name))
	}
	return c, nil
}

func (p *Postgres) UpdateCustomer(ctx context.Context, name string, update *model.CustomerUpdate) (*model.Customer, error) {
	if update == nil || update.IsEmpty() {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "update has no fields", goerr.V("name", name))
	}
	name = strings.TrimSpace(name)

	var updated *model.Customer
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE name = $1 FOR UPDATE`, name)
		prev, err := scanCustomer(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
		}
		if err != nil {
			return storeError(err, "failed to lock customer", goerr.V("name", name))
		}

		next, err := normalizeCustomer(update.Apply(prev))
		if err != nil {
			return err
		}

		row = tx.QueryRow(ctx, `
			UPDATE customers
			SET name = $2, description = $3, products = $4, priority = $5, notes = $6,
			    updated_at = GREATEST(now(), updated_at + interval '1 microsecond')
			WHERE name = $1
			RETURNING `+customerColumns,
			name, next.Name, next.Description, nonNil(next.Products), string(next.Priority), next.Notes,
		)
		updated, err = scanCustomer(row)
		if isUniqueViolation(err) {
			return goerr.Wrap(model.ErrDuplicateCustomer, "customer already exists", goerr.V("name", next.Name))
		}
		if err != nil {
			return storeError(err, "failed to update customer", goerr.V("name", name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (p *Postgres) DeleteCustomer(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	tag, err := p.pool.Exec(ctx, `DELETE FROM customers WHERE name = $1`, name)
	if err != nil {
		return storeError(err, "failed to delete customer", goerr.V("name", name))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
	}
	return nil
}

func (p *Postgres) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name`)
	if err != nil {
		return nil, storeError(err, "failed to list customers")
	}
	defer rows.Close()

	var out []*model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, storeError(err, "failed to scan customer")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "failed to iterate customers")
	}
	return out, nil
}

// withTx runs fn in a transaction that is rolled back unless fn succeeds.
func (p *Postgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return storeError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeError(err, "failed to commit transaction")
	}
	return nil
}
