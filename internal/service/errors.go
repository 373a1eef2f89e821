package service

import (
	"errors"

	"dukasell/internal/repository"
)

var (
	ErrInvalidPackage           = errors.New("invalid package")
	ErrInvalidPhoneNumber       = errors.New("invalid phone number")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrInsufficientCredits      = repository.ErrInsufficientCredits
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrBankDetailsRequired      = errors.New("bank details required")
	ErrInvalidBankDetails       = errors.New("invalid bank details")
	ErrPaymentNotCompleted      = errors.New("payment not completed")
	ErrPaymentAlreadyProcessed  = errors.New("payment already processed")
	ErrStripeNotConfigured      = errors.New("stripe not configured")
	ErrNotResolvable            = errors.New("order cannot be resolved by status query")
	ErrInvalidCreds             = errors.New("invalid username or password")
	ErrAccountDisabled          = errors.New("account is disabled")
	ErrInvalidGoogleToken       = errors.New("invalid google token")
)
