package credit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"static-ad-server/modules/common/database"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUserNotFound        = errors.New("user not found")
	errConflict            = errors.New("credit balance changed concurrently")
)

const (
	TypeGenerationBatch      = "generation_batch"
	TypeGenerationFix        = "generation_fix"
	TypeGenerationRegenerate = "generation_regenerate"
	TypeRefund               = "refund"

	usersTable        = "users"
	transactionsTable = "credit_transactions"

	maxDebitAttempts = 3
)

// Reference - 크레딧 변동의 원인 (배치 또는 변형)
type Reference struct {
	Type        string
	BatchID     string
	VariationID string
	Description string
}

// Account - users 테이블의 크레딧 컬럼
type Account struct {
	ID                    string `json:"id"`
	CreditLimit           int    `json:"credit_limit"`
	CreditsUsed           int    `json:"credits_used"`
	AddonCreditsRemaining int    `json:"addon_credits_remaining"`
}

// Balance - limit - used + addon
func (a Account) Balance() int {
	return a.CreditLimit - a.CreditsUsed + a.AddonCreditsRemaining
}

// Transaction - credit_transactions 테이블 구조 (append-only)
type Transaction struct {
	ID            string  `json:"id,omitempty"`
	UserID        string  `json:"user_id"`
	Type          string  `json:"transaction_type"`
	Amount        int     `json:"amount"`
	BalanceBefore int     `json:"balance_before"`
	BalanceAfter  int     `json:"balance_after"`
	BatchID       *string `json:"batch_id"`
	VariationID   *string `json:"variation_id"`
	Description   string  `json:"description"`
}

type Client struct {
	store database.Store
	log   *zap.Logger
}

// NewClient - Credit 클라이언트 생성
func NewClient(store database.Store, log *zap.Logger) *Client {
	return &Client{
		store: store,
		log:   log.Named("credit"),
	}
}

// Balance - 현재 잔액 조회
func (c *Client) Balance(ctx context.Context, userID string) (int, error) {
	account, err := c.account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance(), nil
}

// Debit - 크레딧 차감 (읽기 → 잔액 확인 → 조건부 쓰기)
// 플랜 크레딧을 먼저 쓰고 부족분은 애드온에서 차감한다.
func (c *Client) Debit(ctx context.Context, userID string, amount int, ref Reference) error {
	if amount <= 0 {
		return fmt.Errorf("invalid debit amount: %d", amount)
	}

	for attempt := 1; attempt <= maxDebitAttempts; attempt++ {
		err := c.tryDebit(ctx, userID, amount, ref)
		if !errors.Is(err, errConflict) {
			return err
		}
		c.log.Warn("⚠️ [Credit] Balance changed during debit, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt))
	}
	return fmt.Errorf("failed to debit credits after %d attempts: %w", maxDebitAttempts, errConflict)
}

func (c *Client) tryDebit(ctx context.Context, userID string, amount int, ref Reference) error {
	account, err := c.account(ctx, userID)
	if err != nil {
		return err
	}

	before := account.Balance()
	if before < amount {
		c.log.Info("💸 [Credit] Insufficient credits",
			zap.String("user_id", userID),
			zap.Int("balance", before),
			zap.Int("required", amount))
		return ErrInsufficientCredits
	}

	planRemaining := account.CreditLimit - account.CreditsUsed
	if planRemaining < 0 {
		planRemaining = 0
	}
	fromPlan := amount
	if fromPlan > planRemaining {
		fromPlan = planRemaining
	}
	fromAddon := amount - fromPlan

	affected, err := c.store.Update(ctx, usersTable, map[string]interface{}{
		"credits_used":            account.CreditsUsed + fromPlan,
		"addon_credits_remaining": account.AddonCreditsRemaining - fromAddon,
	}, database.Where().
		Eq("id", userID).
		Eq("credits_used", account.CreditsUsed).
		Eq("addon_credits_remaining", account.AddonCreditsRemaining), nil)
	if err != nil {
		return fmt.Errorf("failed to deduct credits: %w", err)
	}
	if affected == 0 {
		return errConflict
	}

	after := before - amount
	c.log.Info("💰 [Credit] Credits deducted",
		zap.String("user_id", userID),
		zap.Int("amount", amount),
		zap.Int("balance_before", before),
		zap.Int("balance_after", after))

	c.record(ctx, userID, -amount, before, after, ref)
	return nil
}

// Refund - 차감된 크레딧 반환 (플랜 사용량부터 되돌리고 나머지는 애드온으로)
func (c *Client) Refund(ctx context.Context, userID string, amount int, ref Reference) error {
	if amount <= 0 {
		return fmt.Errorf("invalid refund amount: %d", amount)
	}

	for attempt := 1; attempt <= maxDebitAttempts; attempt++ {
		account, err := c.account(ctx, userID)
		if err != nil {
			return err
		}

		toPlan := amount
		if toPlan > account.CreditsUsed {
			toPlan = account.CreditsUsed
		}
		toAddon := amount - toPlan

		affected, err := c.store.Update(ctx, usersTable, map[string]interface{}{
			"credits_used":            account.CreditsUsed - toPlan,
			"addon_credits_remaining": account.AddonCreditsRemaining + toAddon,
		}, database.Where().
			Eq("id", userID).
			Eq("credits_used", account.CreditsUsed).
			Eq("addon_credits_remaining", account.AddonCreditsRemaining), nil)
		if err != nil {
			return fmt.Errorf("failed to refund credits: %w", err)
		}
		if affected == 0 {
			continue
		}

		before := account.Balance()
		c.log.Info("↩️ [Credit] Credits refunded",
			zap.String("user_id", userID),
			zap.Int("amount", amount),
			zap.Int("balance_after", before+amount))

		ref.Type = TypeRefund
		c.record(ctx, userID, amount, before, before+amount, ref)
		return nil
	}
	return fmt.Errorf("failed to refund credits after %d attempts: %w", maxDebitAttempts, errConflict)
}

// record - 원장 기록 (실패해도 차감은 유지, 로그만 남김)
func (c *Client) record(ctx context.Context, userID string, amount, before, after int, ref Reference) {
	tx := Transaction{
		UserID:        userID,
		Type:          ref.Type,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		BatchID:       optional(ref.BatchID),
		VariationID:   optional(ref.VariationID),
		Description:   ref.Description,
	}

	if err := c.store.Insert(ctx, transactionsTable, tx, nil); err != nil {
		c.log.Warn("⚠️ [Credit] Failed to record transaction",
			zap.String("user_id", userID),
			zap.String("transaction_type", ref.Type),
			zap.Error(err))
	}
}

func (c *Client) account(ctx context.Context, userID string) (Account, error) {
	var accounts []Account
	err := c.store.Find(ctx, usersTable, database.Where().
		Select("id,credit_limit,credits_used,addon_credits_remaining").
		Eq("id", userID), &accounts)
	if err != nil {
		return Account{}, fmt.Errorf("failed to fetch user credits: %w", err)
	}
	if len(accounts) == 0 {
		return Account{}, ErrUserNotFound
	}
	return accounts[0], nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
