package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"filekeeper/internal/domain"
)

const (
	linkColumns       = `id, owner_id, file_path, token, password_hash, expires_at, access_count, last_accessed, created_at`
	collectionColumns = `id, owner_id, token, name, password_hash, item_count, expires_at, access_count, last_accessed, created_at`
)

type ShareRepository struct {
	db *sqlx.DB
}

func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// reserveToken records token in the ledger inside tx.
func reserveToken(ctx context.Context, tx *sqlx.Tx, token string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO share_tokens (token) VALUES ($1)`, token)
	if isUniqueViolation(err) {
		return domain.ErrTokenTaken
	}
	if err != nil {
		return fmt.Errorf("failed to reserve token: %w", err)
	}
	return nil
}

func (r *ShareRepository) CreateLink(ctx context.Context, link *domain.ShareLink) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := reserveToken(ctx, tx, link.Token); err != nil {
		return err
	}

	query := `
        INSERT INTO share_links (
            id, owner_id, file_path, token, password_hash, expires_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6
        ) RETURNING created_at`

	err = tx.QueryRowxContext(ctx, query,
		link.ID,
		link.OwnerID,
		link.FilePath,
		link.Token,
		link.PasswordHash,
		link.ExpiresAt,
	).Scan(&link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create share link: %w", err)
	}

	return tx.Commit()
}

func (r *ShareRepository) CreateCollection(ctx context.Context, c *domain.ShareCollection) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := reserveToken(ctx, tx, c.Token); err != nil {
		return err
	}

	c.ItemCount = len(c.ItemPaths)
	query := `
        INSERT INTO share_collections (
            id, owner_id, token, name, password_hash, item_count, expires_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7
        ) RETURNING created_at`

	err = tx.QueryRowxContext(ctx, query,
		c.ID,
		c.OwnerID,
		c.Token,
		c.Name,
		c.PasswordHash,
		c.ItemCount,
		c.ExpiresAt,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create share collection: %w", err)
	}

	for i, p := range c.ItemPaths {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO share_collection_items (collection_id, position, item_path) VALUES ($1, $2, $3)`,
			c.ID, i, p)
		if err != nil {
			return fmt.Errorf("failed to add collection item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *ShareRepository) GetLink(ctx context.Context, id uuid.UUID) (*domain.ShareLink, error) {
	var link domain.ShareLink
	err := r.db.GetContext(ctx, &link, `SELECT `+linkColumns+` FROM share_links WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "share link")
	}
	return &link, nil
}

func (r *ShareRepository) LinkByToken(ctx context.Context, token string) (*domain.ShareLink, error) {
	var link domain.ShareLink
	err := r.db.GetContext(ctx, &link, `SELECT `+linkColumns+` FROM share_links WHERE token = $1`, token)
	if err != nil {
		return nil, notFound(err, "share link")
	}
	return &link, nil
}

// TouchLink counts one access. The increment happens in a single statement so
// concurrent resolutions never lose an update.
func (r *ShareRepository) TouchLink(ctx context.Context, id uuid.UUID, now time.Time) (*domain.ShareLink, error) {
	query := `
        UPDATE share_links
        SET access_count = access_count + 1, last_accessed = $2
        WHERE id = $1
        RETURNING ` + linkColumns

	var link domain.ShareLink
	if err := r.db.GetContext(ctx, &link, query, id, now); err != nil {
		return nil, notFound(err, "share link")
	}
	return &link, nil
}

func (r *ShareRepository) ListLinks(ctx context.Context, ownerID int64) ([]domain.ShareLink, error) {
	links := []domain.ShareLink{}
	err := r.db.SelectContext(ctx, &links,
		`SELECT `+linkColumns+` FROM share_links WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}
	return links, nil
}

func (r *ShareRepository) DeleteLink(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete share link: %w", err)
	}
	return expectOne(res, "share link")
}

func (r *ShareRepository) GetCollection(ctx context.Context, id uuid.UUID) (*domain.ShareCollection, error) {
	var c domain.ShareCollection
	err := r.db.GetContext(ctx, &c, `SELECT `+collectionColumns+` FROM share_collections WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "share collection")
	}
	return r.withItems(ctx, &c)
}

func (r *ShareRepository) CollectionByToken(ctx context.Context, token string) (*domain.ShareCollection, error) {
	var c domain.ShareCollection
	err := r.db.GetContext(ctx, &c, `SELECT `+collectionColumns+` FROM share_collections WHERE token = $1`, token)
	if err != nil {
		return nil, notFound(err, "share collection")
	}
	return r.withItems(ctx, &c)
}

func (r *ShareRepository) TouchCollection(ctx context.Context, id uuid.UUID, now time.Time) (*domain.ShareCollection, error) {
	query := `
        UPDATE share_collections
        SET access_count = access_count + 1, last_accessed = $2
        WHERE id = $1
        RETURNING ` + collectionColumns

	var c domain.ShareCollection
	if err := r.db.GetContext(ctx, &c, query, id, now); err != nil {
		return nil, notFound(err, "share collection")
	}
	return r.withItems(ctx, &c)
}

func (r *ShareRepository) ListCollections(ctx context.Context, ownerID int64) ([]domain.ShareCollection, error) {
	cols := []domain.ShareCollection{}
	err := r.db.SelectContext(ctx, &cols,
		`SELECT `+collectionColumns+` FROM share_collections WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share collections: %w", err)
	}
	if len(cols) == 0 {
		return cols, nil
	}

	ids := make([]string, len(cols))
	byID := make(map[uuid.UUID]*domain.ShareCollection, len(cols))
	for i := range cols {
		ids[i] = cols[i].ID.String()
		cols[i].ItemPaths = []string{}
		byID[cols[i].ID] = &cols[i]
	}

	var items []struct {
		CollectionID uuid.UUID `db:"collection_id"`
		ItemPath     string    `db:"item_path"`
	}
	err = r.db.SelectContext(ctx, &items, `
        SELECT collection_id, item_path
        FROM share_collection_items
        WHERE collection_id = ANY($1::uuid[])
        ORDER BY collection_id, position`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list collection items: %w", err)
	}
	for _, it := range items {
		if c, ok := byID[it.CollectionID]; ok {
			c.ItemPaths = append(c.ItemPaths, it.ItemPath)
		}
	}
	return cols, nil
}

func (r *ShareRepository) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete share collection: %w", err)
	}
	return expectOne(res, "share collection")
}

func (r *ShareRepository) withItems(ctx context.Context, c *domain.ShareCollection) (*domain.ShareCollection, error) {
	c.ItemPaths = []string{}
	err := r.db.SelectContext(ctx, &c.ItemPaths,
		`SELECT item_path FROM share_collection_items WHERE collection_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection items: %w", err)
	}
	return c, nil
}
