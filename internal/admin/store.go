package admin

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrOperatorNotFound      = errors.New("operator not found")
	ErrOperatorAlreadyExists = errors.New("operator already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
)

// Store is implemented by anything that can durably hold operator
// accounts. Grounded on alexdev-tb-CodePortal/internal/auth.Store, with
// CountOperators added so the service can tell a bootstrap registration
// (empty roster, no invite code required) from every registration after
// it.
type Store interface {
	CreateOperator(req RegisterRequest, role Role) (*Operator, error)
	GetOperatorByEmail(email string) (*Operator, error)
	GetOperatorByID(id string) (*Operator, error)
	ValidateCredentials(email, password string) (*Operator, error)
	CountOperators() (int, error)
}

// MemoryStore is an in-memory Store, used in tests and single-node
// deployments that don't want a Postgres dependency for a handful of
// operator accounts.
type MemoryStore struct {
	operators map[string]*Operator // key: lowercased email
	mu        sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{operators: make(map[string]*Operator)}
}

func (s *MemoryStore) CreateOperator(req RegisterRequest, role Role) (*Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(req.Email)
	if _, exists := s.operators[key]; exists {
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
	op := &Operator{
		ID:           id,
		Name:         req.Name,
		Email:        req.Email,
		Team:         req.Team,
		Role:         role,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.operators[key] = op
	return op, nil
}

func (s *MemoryStore) CountOperators() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.operators), nil
}

func (s *MemoryStore) GetOperatorByEmail(email string) (*Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operators[strings.ToLower(email)]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	return op, nil
}

func (s *MemoryStore) GetOperatorByID(id string) (*Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, op := range s.operators {
		if op.ID == id {
			return op, nil
		}
	}
	return nil, ErrOperatorNotFound
}

func (s *MemoryStore) ValidateCredentials(email, password string) (*Operator, error) {
	op, err := s.GetOperatorByEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return op, nil
}

func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
