package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"dukasell/config"
	"dukasell/internal/auth"
	"dukasell/internal/domain"
	"dukasell/internal/models"
	"dukasell/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	cfg       *config.Config
	db        *gorm.DB
	userRepo  *repository.UserRepository
	txRepo    *repository.TransactionRepository
	adminRepo *repository.AdminRepository
	log       *zap.Logger
}

func NewAuthService(cfg *config.Config, db *gorm.DB, userRepo *repository.UserRepository, txRepo *repository.TransactionRepository, adminRepo *repository.AdminRepository, log *zap.Logger) *AuthService {
	return &AuthService{cfg: cfg, db: db, userRepo: userRepo, txRepo: txRepo, adminRepo: adminRepo, log: log.Named("auth")}
}

type LoginResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
	IsNew bool         `json:"isNew"`
}

// LoginWithGoogle finds the user by Google id, then by email (linking the
// Google id), and otherwise creates one with the starting credits.
func (s *AuthService) LoginWithGoogle(ctx context.Context, p GoogleProfile) (*LoginResult, error) {
	if p.ID == "" || p.Email == "" {
		return nil, ErrInvalidGoogleToken
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	isNew := false

	u, err := s.userRepo.GetByGoogleID(ctx, p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = s.userRepo.GetByEmail(ctx, email)
		switch {
		case err == nil:
			gid := p.ID
			u.GoogleID = &gid
			if u.Picture == "" {
				u.Picture = p.Picture
			}
			err = s.userRepo.Update(ctx, u)
		case errors.Is(err, repository.ErrNotFound):
			u, err = s.createUser(ctx, p, email)
			isNew = err == nil
		}
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.userRepo.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("updating last login failed", zap.Uint("user_id", u.ID), zap.Error(err))
	}
	u.LastLogin = &now
	token, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, domain.RoleUser, s.cfg.JWT.AccessExpiry)
	if err != nil {
		return nil, err
	}
	if isNew {
		s.log.Info("user created", zap.Uint("user_id", u.ID), zap.Int64("credits", u.Credits))
	}
	return &LoginResult{User: u, Token: token, IsNew: isNew}, nil
}

func (s *AuthService) createUser(ctx context.Context, p GoogleProfile, email string) (*models.User, error) {
	gid := p.ID
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	starting := s.cfg.Credits.StartingCredits
	u := &models.User{
		GoogleID:   &gid,
		Email:      email,
		Name:       name,
		Picture:    p.Picture,
		Credits:    starting,
		TotalSpent: decimal.Zero,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, u); err != nil {
			return err
		}
		if starting <= 0 {
			return nil
		}
		return s.txRepo.WithTx(tx).Create(ctx, bonusRow(u.ID, starting, "Welcome bonus"))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *AuthService) SetFCMToken(ctx context.Context, userID uint, token string) error {
	return s.userRepo.SetFCMToken(ctx, userID, strings.TrimSpace(token))
}

type AdminLoginResult struct {
	Admin *models.Admin `json:"admin"`
	Token string        `json:"token"`
}

func (s *AuthService) AdminLogin(ctx context.Context, username, password string) (*AdminLoginResult, error) {
	a, err := s.adminRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCreds
	}
	if !a.IsActive {
		return nil, ErrAccountDisabled
	}
	now := time.Now()
	if err := s.adminRepo.TouchLastLogin(ctx, a.ID, now); err != nil {
		s.log.Warn("updating admin last login failed", zap.Uint("admin_id", a.ID), zap.Error(err))
	}
	a.LastLogin = &now
	token, err := auth.GenerateAccessToken(&s.cfg.JWT, a.ID, a.Email, domain.RoleAdmin, s.cfg.JWT.AdminExpiry)
	if err != nil {
		return nil, err
	}
	return &AdminLoginResult{Admin: a, Token: token}, nil
}

func (s *AuthService) AdminMe(ctx context.Context, adminID uint) (*models.Admin, error) {
	return s.adminRepo.GetByID(ctx, adminID)
}
