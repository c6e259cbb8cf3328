package user

import (
	"context"
	"fmt"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/SCORPIA2004/CampusConnect/internal/validation"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "campus-connect"

// InputError is a request that failed validation; Msg is safe to show to the user.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

type Service struct {
	store     Store
	jwtSecret []byte
	tokenTTL  time.Duration
	validate  *validator.Validate
	hashCost  int
	now       func() time.Time
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewService(store Store, secret string, tokenTTL time.Duration, validate *validator.Validate) *Service {
	return &Service{
		store:     store,
		jwtSecret: []byte(secret),
		tokenTTL:  tokenTTL,
		validate:  validate,
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req protocol.RegisterRequest) (protocol.Profile, error) {
	req.Email = validation.NormalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return protocol.Profile{}, &InputError{Msg: validation.Describe(err)}
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return protocol.Profile{}, err
	}

	u := User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hashedPwd),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return protocol.Profile{}, err
	}
	return u.Profile(), nil
}

func (s *Service) Login(ctx context.Context, req protocol.LoginRequest) (protocol.LoginResponse, error) {
	req.Email = validation.NormalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return protocol.LoginResponse{}, &InputError{Msg: validation.Describe(err)}
	}

	u, found, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return protocol.LoginResponse{}, err
	}
	if !found {
		return protocol.LoginResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return protocol.LoginResponse{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(u.Email)
	if err != nil {
		return protocol.LoginResponse{}, err
	}
	return protocol.LoginResponse{AuthToken: token, Profile: u.Profile()}, nil
}

func (s *Service) IssueToken(email string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})
	ss, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return ss, nil
}

// ProfileByToken verifies the token and loads its owner. A valid token for a
// deleted account is rejected.
func (s *Service) ProfileByToken(ctx context.Context, tokenString string) (protocol.Profile, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return protocol.Profile{}, ErrInvalidToken
	}

	u, found, err := s.store.GetUserByEmail(ctx, claims.Email)
	if err != nil {
		return protocol.Profile{}, fmt.Errorf("load token owner: %w", err)
	}
	if !found {
		return protocol.Profile{}, ErrInvalidToken
	}
	return u.Profile(), nil
}

func (s *Service) ProfileByEmail(ctx context.Context, email string) (protocol.Profile, bool, error) {
	u, found, err := s.store.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil || !found {
		return protocol.Profile{}, found, err
	}
	return u.Profile(), true, nil
}
