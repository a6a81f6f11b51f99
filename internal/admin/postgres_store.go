package admin

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// PostgresStore is the production Store, backed by lib/pq. Grounded on
// alexdev-tb-CodePortal/internal/auth.PostgresStore.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS operators (
		id VARCHAR(32) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		team VARCHAR(255),
		role VARCHAR(32) NOT NULL DEFAULT 'viewer',
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_operators_email ON operators(email);
	`)
	return err
}

func (s *PostgresStore) CreateOperator(req RegisterRequest, role Role) (*Operator, error) {
	var exists bool
	if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM operators WHERE LOWER(email) = LOWER($1))", req.Email).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrOperatorAlreadyExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id, err := generateID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	op := &Operator{}
	err = s.db.QueryRow(`
		INSERT INTO operators (id, name, email, team, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, name, email, team, role, created_at, updated_at
	`, id, req.Name, req.Email, req.Team, string(role), string(hashed), now, now).Scan(
		&op.ID, &op.Name, &op.Email, &op.Team, &op.Role, &op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *PostgresStore) GetOperatorByEmail(email string) (*Operator, error) {
	op := &Operator{}
	err := s.db.QueryRow(`
		SELECT id, name, email, team, role, password_hash, created_at, updated_at
		FROM operators WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&op.ID, &op.Name, &op.Email, &op.Team, &op.Role, &op.PasswordHash, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}
	return op, nil
}

func (s *PostgresStore) GetOperatorByID(id string) (*Operator, error) {
	op := &Operator{}
	err := s.db.QueryRow(`
		SELECT id, name, email, team, role, password_hash, created_at, updated_at
		FROM operators WHERE id = $1
	`, id).Scan(&op.ID, &op.Name, &op.Email, &op.Team, &op.Role, &op.PasswordHash, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}
	return op, nil
}

func (s *PostgresStore) CountOperators() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM operators").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) ValidateCredentials(email, password string) (*Operator, error) {
	op, err := s.GetOperatorByEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return op, nil
}
