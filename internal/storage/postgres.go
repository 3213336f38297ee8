package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/xaenox/concierge-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) SaveBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("cannot save nil booking")
	}
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO bookings (id, sender_id, activity, known, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		booking.ID,
		booking.SenderID,
		booking.Activity,
		booking.Known,
		booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating booking: %w", err)
	}

	return nil
}

func (s *PostgresStorage) ListBookings(ctx context.Context, senderID string) ([]*models.Booking, error) {
	query := `
		SELECT id, sender_id, activity, known, created_at
		FROM bookings
		WHERE sender_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, senderID)
	if err != nil {
		return nil, fmt.Errorf("error querying bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b := &models.Booking{}
		if err := rows.Scan(&b.ID, &b.SenderID, &b.Activity, &b.Known, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

func (s *PostgresStorage) AppendTurn(ctx context.Context, turn *models.Turn) error {
	if turn == nil {
		return fmt.Errorf("cannot append nil turn")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO turns (sender_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, turn.SenderID, string(turn.Role), turn.Content, turn.CreatedAt); err != nil {
		return fmt.Errorf("error appending turn: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetTurns(ctx context.Context, senderID string, limit int) ([]*models.Turn, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT sender_id, role, content, created_at FROM (
			SELECT id, sender_id, role, content, created_at
			FROM turns
			WHERE sender_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, senderID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.Turn
	for rows.Next() {
		t := &models.Turn{}
		var role string
		if err := rows.Scan(&t.SenderID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning turn: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
