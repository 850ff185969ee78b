package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/corpora-ai/corpora/internal/config"
	"github.com/corpora-ai/corpora/internal/core"
	"github.com/corpora-ai/corpora/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Pool settings sized for an API service; the worker uses far less.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), COALESCE($6, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Collections

func (c *DatabaseClient) CreateCollection(ctx context.Context, col *models.Collection) error {
	if col == nil {
		return errors.New("nil collection")
	}
	const q = `
		INSERT INTO collections (id, user_id, name, type, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), COALESCE($7, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		col.ID, col.UserID, col.Name, col.Type, col.Description, col.CreatedAt, col.UpdatedAt)
	return err
}

func (c *DatabaseClient) ListCollectionsByUser(ctx context.Context, userID string) ([]models.Collection, error) {
	const q = `
		SELECT id, user_id, name, type, COALESCE(description, ''), created_at, updated_at
		FROM collections
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Collection
	for rows.Next() {
		var col models.Collection
		if err := rows.Scan(
			&col.ID, &col.UserID, &col.Name, &col.Type, &col.Description, &col.CreatedAt, &col.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetCollectionOwned(ctx context.Context, collectionID, userID string) (*models.Collection, error) {
	const q = `
		SELECT id, user_id, name, type, COALESCE(description, ''), created_at, updated_at
		FROM collections
		WHERE id = $1 AND user_id = $2
	`
	var col models.Collection
	err := c.db.QueryRowContext(ctx, q, collectionID, userID).Scan(
		&col.ID, &col.UserID, &col.Name, &col.Type, &col.Description, &col.CreatedAt, &col.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &col, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, collection_id, name, type, size, file_path, content_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.CollectionID, doc.Name, doc.Type, doc.Size, doc.FilePath,
		doc.ContentType, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	return err
}

const documentColumns = `
	id, collection_id, name, type, size, file_path, COALESCE(content_type, ''), status, metadata, created_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d    models.Document
		meta []byte
	)
	err := row.Scan(
		&d.ID, &d.CollectionID, &d.Name, &d.Type, &d.Size, &d.FilePath,
		&d.ContentType, &d.Status, &meta, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		var m models.DocumentMetadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decode document metadata: %w", err)
		}
		d.Metadata = &m
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *DatabaseClient) GetDocumentOwned(ctx context.Context, documentID, userID string) (*models.Document, error) {
	q := `
		SELECT d.id, d.collection_id, d.name, d.type, d.size, d.file_path,
			COALESCE(d.content_type, ''), d.status, d.metadata, d.created_at, d.updated_at
		FROM documents d
		JOIN collections c ON d.collection_id = c.id
		WHERE d.id = $1 AND c.user_id = $2
	`
	doc, err := scanDocument(c.db.QueryRowContext(ctx, q, documentID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *DatabaseClient) ListDocumentsByCollection(ctx context.Context, collectionID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE collection_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// ListDocumentIDsByCollection is the point-in-time collection expansion used
// by the worker; concurrent additions or deletions are not reflected.
func (c *DatabaseClient) ListDocumentIDsByCollection(ctx context.Context, collectionID string) ([]string, error) {
	const q = `SELECT id FROM documents WHERE collection_id = $1 ORDER BY created_at ASC`
	rows, err := c.db.QueryContext(ctx, q, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) SetDocumentProcessing(ctx context.Context, id string, totalChunks int) error {
	const q = `
		UPDATE documents
		SET status = 'processing',
			metadata = jsonb_build_object('total_chunks', $2::int, 'processed_chunks', 0),
			updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, totalChunks)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) SetDocumentCompleted(ctx context.Context, id string, processedChunks int) error {
	const q = `
		UPDATE documents
		SET status = 'completed',
			metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{processed_chunks}', to_jsonb($2::int)),
			updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, processedChunks)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Chunks

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	const q = `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := c.db.ExecContext(ctx, q, documentID)
	return err
}

// InsertChunk writes one chunk as its own statement, which Postgres commits
// independently. A failed insert therefore never corrupts sibling chunks.
func (c *DatabaseClient) InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error {
	if chunk == nil {
		return errors.New("nil chunk")
	}
	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, chunk_text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	vec := pgvector.NewVector(chunk.Embedding)
	_, err := c.db.ExecContext(ctx, q,
		chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.ChunkText, vec, chunk.CreatedAt)
	return err
}

func (c *DatabaseClient) CountChunksByDocument(ctx context.Context, documentID string) (int, error) {
	const q = `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`
	var n int
	if err := c.db.QueryRowContext(ctx, q, documentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SearchChunks finds the top-k similar chunks across a collection's documents
// for a query embedding.
func (c *DatabaseClient) SearchChunks(ctx context.Context, collectionID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT ch.id, ch.document_id, ch.chunk_index, ch.chunk_text, ch.embedding, ch.created_at
		FROM document_chunks ch
		JOIN documents d ON ch.document_id = d.id
		WHERE d.collection_id = $1
		ORDER BY ch.embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, collectionID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.ChunkText, &emb, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}
