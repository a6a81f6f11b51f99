package admin

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInviteCodeRequired is returned when Register is called without a
// matching InviteCode once the operator roster is non-empty. The first
// operator ever created bootstraps as RoleAdmin without a code, since
// nothing can invite it.
var ErrInviteCodeRequired = errors.New("invite code required")

// Service provides operator account management and the bearer-token
// validation /debug/pool gates on. Unlike a product's self-service signup,
// registering an operator past the bootstrap account requires possession
// of inviteCode, a secret configured on the node agent itself.
type Service struct {
	store      Store
	jwt        *jwtService
	inviteCode string
}

func NewService(store Store, jwtSecret, inviteCode string) *Service {
	return &Service{store: store, jwt: newJWTService(jwtSecret), inviteCode: inviteCode}
}

func (s *Service) Register(req RegisterRequest) (*AuthResponse, error) {
	if err := validateRegisterRequest(req); err != nil {
		return nil, err
	}

	role, err := s.resolveRegistrationRole(req)
	if err != nil {
		return nil, err
	}

	op, err := s.store.CreateOperator(req, role)
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateToken(*op)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Operator: *op, Token: token}, nil
}

// resolveRegistrationRole decides what role a new operator gets. The
// first operator in an empty roster bootstraps as an admin regardless of
// what it asked for, since no one could have invited it. Every
// registration after that must present the configured invite code and
// may not self-grant RoleAdmin.
func (s *Service) resolveRegistrationRole(req RegisterRequest) (Role, error) {
	n, err := s.store.CountOperators()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return RoleAdmin, nil
	}
	if s.inviteCode == "" || req.InviteCode != s.inviteCode {
		return "", ErrInviteCodeRequired
	}
	if req.Role == RoleAdmin {
		return "", errors.New("invited operators must register as viewers; promote via the store directly")
	}
	return RoleViewer, nil
}

// RequireRole reports whether op meets at least minRole, ordered
// RoleViewer < RoleAdmin. Used to gate actions finer-grained than
// "authenticated at all" — currently nothing on this debug surface needs
// more than RoleViewer, but the seam exists for whoever adds the next
// mutating endpoint.
func (s *Service) RequireRole(op *Operator, minRole Role) error {
	if op.Role.rank() < minRole.rank() {
		return fmt.Errorf("operator %s (role=%s) lacks required role %s", op.ID, op.Role, minRole)
	}
	return nil
}

func (s *Service) Login(req LoginRequest) (*AuthResponse, error) {
	if err := validateLoginRequest(req); err != nil {
		return nil, err
	}

	op, err := s.store.ValidateCredentials(req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateToken(*op)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Operator: *op, Token: token}, nil
}

// Authorize validates a bearer token and returns the operator it names.
// Used by the /debug/pool handler to gate access.
func (s *Service) Authorize(authHeader string) (*Operator, error) {
	tokenString, err := s.jwt.ExtractTokenFromHeader(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := s.jwt.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	return s.store.GetOperatorByID(claims.OperatorID)
}

func validateRegisterRequest(req RegisterRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(req.Email) == "" {
		return errors.New("email is required")
	}
	if !isValidEmail(req.Email) {
		return errors.New("invalid email format")
	}
	if len(req.Password) < 12 {
		return errors.New("password must be at least 12 characters long")
	}
	return nil
}

func validateLoginRequest(req LoginRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return errors.New("email is required")
	}
	if strings.TrimSpace(req.Password) == "" {
		return errors.New("password is required")
	}
	return nil
}

func isValidEmail(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}
