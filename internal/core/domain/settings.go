package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// WalletSettings is the process-wide wallet configuration document.
type WalletSettings struct {
	ServiceFee         decimal.Decimal    `json:"serviceFee"`
	Currency           string             `json:"currency"`
	WithdrawalSettings WithdrawalSettings `json:"withdrawalSettings"`
	DepositSettings    DepositSettings    `json:"depositSettings"`
}

type WithdrawalSettings struct {
	MinWithdrawal  decimal.Decimal `json:"minWithdrawal"`
	MaxWithdrawal  decimal.Decimal `json:"maxWithdrawal"`
	ProcessingTime string          `json:"processingTime"`
}

type DepositSettings struct {
	BankTransferRequiresApproval bool `json:"bankTransferRequiresApproval"`
	CardDepositInstant           bool `json:"cardDepositInstant"`
	PaypalDepositInstant         bool `json:"paypalDepositInstant"`
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	ServiceFee     *decimal.Decimal
	Currency       *string
	MinWithdrawal  *decimal.Decimal
	MaxWithdrawal  *decimal.Decimal
	ProcessingTime *string

	BankTransferRequiresApproval *bool
	CardDepositInstant           *bool
	PaypalDepositInstant         *bool
}

// Merge returns s with every non-nil field of p applied.
func (s WalletSettings) Merge(p SettingsPatch) WalletSettings {
	if p.ServiceFee != nil {
		s.ServiceFee = *p.ServiceFee
	}
	if p.Currency != nil {
		s.Currency = *p.Currency
	}
	if p.MinWithdrawal != nil {
		s.WithdrawalSettings.MinWithdrawal = *p.MinWithdrawal
	}
	if p.MaxWithdrawal != nil {
		s.WithdrawalSettings.MaxWithdrawal = *p.MaxWithdrawal
	}
	if p.ProcessingTime != nil {
		s.WithdrawalSettings.ProcessingTime = *p.ProcessingTime
	}
	if p.BankTransferRequiresApproval != nil {
		s.DepositSettings.BankTransferRequiresApproval = *p.BankTransferRequiresApproval
	}
	if p.CardDepositInstant != nil {
		s.DepositSettings.CardDepositInstant = *p.CardDepositInstant
	}
	if p.PaypalDepositInstant != nil {
		s.DepositSettings.PaypalDepositInstant = *p.PaypalDepositInstant
	}
	return s
}

// Validate rejects settings the withdrawal processor cannot work with.
func (s WalletSettings) Validate() error {
	if s.ServiceFee.IsNegative() {
		return errors.New("serviceFee must not be negative")
	}
	if !s.WithdrawalSettings.MinWithdrawal.IsPositive() {
		return errors.New("minWithdrawal must be positive")
	}
	if !s.WithdrawalSettings.MaxWithdrawal.IsPositive() {
		return errors.New("maxWithdrawal must be positive")
	}
	if s.WithdrawalSettings.MinWithdrawal.GreaterThan(s.WithdrawalSettings.MaxWithdrawal) {
		return errors.New("minWithdrawal must not exceed maxWithdrawal")
	}
	return nil
}
