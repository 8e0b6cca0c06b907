// Package store persists the §3 User/Deposit/Withdrawal/Borrow ledger
// entities and the VaultEvent/RelayerEvent dedup rows on top of
// jinzhu/gorm, mirroring ownership/store/store.go's row/row-mapper shape
// and indexer/store/ledger.go's upsert idiom.
package store

import (
	"context"
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/ledger/decimal"
)

var ErrNotFound = errors.New("ledger/store: not found")

// Store is the persistence capability the Ledger state machine is built
// against (§4.9). All methods are safe for concurrent use; row-level
// consistency for a single user's balance update is the caller's
// responsibility (§5: "the second re-reads the row after the first
// commits").
type Store interface {
	// UpsertUser returns the existing user row for wallet (lowercased), or
	// creates a zero-balance one if none exists.
	UpsertUser(ctx context.Context, wallet string) (UserRow, error)
	GetUser(ctx context.Context, wallet string) (*UserRow, error)
	SaveUser(ctx context.Context, u UserRow) error

	AddDeposit(ctx context.Context, d DepositRow) error
	SumDeposits(ctx context.Context, userID uint64) (decimal.USD, error)
	// DepositsForToken returns every deposit recorded against tokenID,
	// across all chains, used by §4.9's COLLATERAL_REQUEST LTV computation.
	DepositsForToken(ctx context.Context, tokenID string) ([]DepositRow, error)

	AddWithdrawal(ctx context.Context, w WithdrawalRow) (WithdrawalRow, error)
	FindWithdrawalByRequestID(ctx context.Context, chainID uint64, requestID string) (*WithdrawalRow, error)
	FindPendingWithdrawal(ctx context.Context, userID uint64, asset, amount string) (*WithdrawalRow, error)
	SaveWithdrawal(ctx context.Context, w WithdrawalRow) error
	SumCompletedWithdrawals(ctx context.Context, userID uint64) (decimal.USD, error)
	SumPendingWithdrawals(ctx context.Context, userID uint64) (decimal.USD, error)
	SumPendingWithdrawalsAll(ctx context.Context) (decimal.USD, error)

	AddBorrow(ctx context.Context, b BorrowRow) error
	SaveBorrow(ctx context.Context, b BorrowRow) error
	ActiveBorrowsForUser(ctx context.Context, userID uint64) ([]BorrowRow, error)
	ActiveBorrowsForToken(ctx context.Context, tokenID string) ([]BorrowRow, error)
	SumActiveBorrows(ctx context.Context, userID uint64) (decimal.USD, error)

	// RecordVaultEvent inserts e's dedup row. ok=false (no error) means a
	// row with the same (txHash, type, tokenId, asset) already existed —
	// the caller must log and drop the event (§3 dedup key).
	RecordVaultEvent(ctx context.Context, e VaultEventRow) (ok bool, err error)

	// RecordRelayerEvent inserts e's dedup row (COLLATERAL_REQUEST creates
	// it; COLLATERAL_PROCESS/REPAY reuse FindRelayerEvent instead). ok=false
	// means a row with the same (requestId, chainId, type) already existed.
	RecordRelayerEvent(ctx context.Context, e RelayerEventRow) (ok bool, err error)
	FindRelayerEvent(ctx context.Context, chainID uint64, requestID string, typ RelayerEventType) (*RelayerEventRow, error)
	SaveRelayerEvent(ctx context.Context, e RelayerEventRow) error
	PendingRelayerEvents(ctx context.Context, typ RelayerEventType) ([]RelayerEventRow, error)
}

// GormStore implements Store on top of jinzhu/gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already-connected *gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates/updates every table this package owns.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(
		&UserRow{}, &DepositRow{}, &WithdrawalRow{}, &BorrowRow{},
		&VaultEventRow{}, &RelayerEventRow{},
	).Error
}

func (s *GormStore) UpsertUser(ctx context.Context, wallet string) (UserRow, error) {
	wallet = strings.ToLower(wallet)
	var row UserRow
	err := s.db.Where(UserRow{WalletAddress: wallet}).FirstOrCreate(&row, UserRow{
		WalletAddress:      wallet,
		TotalUsdBalance:    decimal.Zero(),
		FloatingUsdBalance: decimal.Zero(),
		BorrowedUsdAmount:  decimal.Zero(),
	}).Error
	if err != nil {
		return UserRow{}, errs.Transient(err)
	}
	return row, nil
}

func (s *GormStore) GetUser(ctx context.Context, wallet string) (*UserRow, error) {
	var row UserRow
	err := s.db.Where("wallet_address = ?", strings.ToLower(wallet)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Transient(err)
	}
	return &row, nil
}

func (s *GormStore) SaveUser(ctx context.Context, u UserRow) error {
	if err := s.db.Save(&u).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *GormStore) AddDeposit(ctx context.Context, d DepositRow) error {
	if err := s.db.Create(&d).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *GormStore) SumDeposits(ctx context.Context, userID uint64) (decimal.USD, error) {
	return s.sumUsd(&DepositRow{}, userID)
}

func (s *GormStore) DepositsForToken(ctx context.Context, tokenID string) ([]DepositRow, error) {
	var rows []DepositRow
	if err := s.db.Where("token_id = ?", tokenID).Find(&rows).Error; err != nil {
		return nil, errs.Transient(err)
	}
	return rows, nil
}

func (s *GormStore) AddWithdrawal(ctx context.Context, w WithdrawalRow) (WithdrawalRow, error) {
	if err := s.db.Create(&w).Error; err != nil {
		return WithdrawalRow{}, errs.Transient(err)
	}
	return w, nil
}

func (s *GormStore) FindWithdrawalByRequestID(ctx context.Context, chainID uint64, requestID string) (*WithdrawalRow, error) {
	var row WithdrawalRow
	err := s.db.Where("chain_id = ? AND request_id = ?", chainID, requestID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Transient(err)
	}
	return &row, nil
}

// FindPendingWithdrawal is the §4.9 WITHDRAW fallback lookup (same user,
// asset, amount), used only when no row matches by requestId.
func (s *GormStore) FindPendingWithdrawal(ctx context.Context, userID uint64, asset, amount string) (*WithdrawalRow, error) {
	var row WithdrawalRow
	err := s.db.Where("user_id = ? AND asset = ? AND amount = ? AND status = ?", userID, asset, amount, WithdrawalPending).
		Order("created_at ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Transient(err)
	}
	return &row, nil
}

func (s *GormStore) SaveWithdrawal(ctx context.Context, w WithdrawalRow) error {
	if err := s.db.Save(&w).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *GormStore) SumCompletedWithdrawals(ctx context.Context, userID uint64) (decimal.USD, error) {
	return s.sumUsdWhere(&WithdrawalRow{}, "user_id = ? AND status = ?", userID, WithdrawalCompleted)
}

func (s *GormStore) SumPendingWithdrawals(ctx context.Context, userID uint64) (decimal.USD, error) {
	return s.sumUsdWhere(&WithdrawalRow{}, "user_id = ? AND status = ?", userID, WithdrawalPending)
}

func (s *GormStore) SumPendingWithdrawalsAll(ctx context.Context) (decimal.USD, error) {
	return s.sumUsdWhere(&WithdrawalRow{}, "status = ?", WithdrawalPending)
}

func (s *GormStore) AddBorrow(ctx context.Context, b BorrowRow) error {
	if err := s.db.Create(&b).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *GormStore) SaveBorrow(ctx context.Context, b BorrowRow) error {
	if err := s.db.Save(&b).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *GormStore) ActiveBorrowsForUser(ctx context.Context, userID uint64) ([]BorrowRow, error) {
	var rows []BorrowRow
	err := s.db.Where("user_id = ? AND status = ?", userID, BorrowActive).
		Order("loan_start_date ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, errs.Transient(err)
	}
	return rows, nil
}

func (s *GormStore) ActiveBorrowsForToken(ctx context.Context, tokenID string) ([]BorrowRow, error) {
	var rows []BorrowRow
	err := s.db.Where("token_id = ? AND status = ?", tokenID, BorrowActive).Find(&rows).Error
	if err != nil {
		return nil, errs.Transient(err)
	}
	return rows, nil
}

func (s *GormStore) SumActiveBorrows(ctx context.Context, userID uint64) (decimal.USD, error) {
	return s.sumUsdWhere(&BorrowRow{}, "user_id = ? AND status = ?", userID, BorrowActive)
}

func (s *GormStore) RecordVaultEvent(ctx context.Context, e VaultEventRow) (bool, error) {
	err := s.db.Create(&e).Error
	if err == nil {
		return true, nil
	}
	// A unique-index violation on (txHash, type, tokenId, asset) is the
	// expected, non-error dedup path (§3); any other failure is transient.
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, errs.Transient(err)
}

func (s *GormStore) RecordRelayerEvent(ctx context.Context, e RelayerEventRow) (bool, error) {
	err := s.db.Create(&e).Error
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, errs.Transient(err)
}

// isUniqueViolation recognizes a unique-index violation across the drivers
// gorm supports (postgres, sqlite, mysql) by substring match on the error
// text, since jinzhu/gorm v1 does not expose a driver-agnostic typed error
// for this.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func (s *GormStore) FindRelayerEvent(ctx context.Context, chainID uint64, requestID string, typ RelayerEventType) (*RelayerEventRow, error) {
	var row RelayerEventRow
	err := s.db.Where("chain_id = ? AND request_id = ? AND type = ?", chainID, requestID, typ).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Transient(err)
	}
	return &row, nil
}

func (s *GormStore) SaveRelayerEvent(ctx context.Context, e RelayerEventRow) error {
	if err := s.db.Save(&e).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *GormStore) PendingRelayerEvents(ctx context.Context, typ RelayerEventType) ([]RelayerEventRow, error) {
	var rows []RelayerEventRow
	err := s.db.Where("type = ? AND status = ?", typ, RelayerEventPending).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, errs.Transient(err)
	}
	return rows, nil
}

// sumUsd sums the usd_value column of model's table for the given user.
// USD is stored as a scaled-integer string (ledger/decimal), which most SQL
// dialects' SUM() would treat as text; summing in Go keeps the arithmetic
// on decimal.USD everywhere, per §9's load-bearing no-float64 rule.
func (s *GormStore) sumUsd(model interface{}, userID uint64) (decimal.USD, error) {
	return s.sumUsdWhere(model, "user_id = ?", userID)
}

func (s *GormStore) sumUsdWhere(model interface{}, query string, args ...interface{}) (decimal.USD, error) {
	total := decimal.Zero()
	switch model.(type) {
	case *DepositRow:
		var rows []DepositRow
		if err := s.db.Where(query, args...).Find(&rows).Error; err != nil {
			return decimal.Zero(), errs.Transient(err)
		}
		for _, r := range rows {
			total = total.Add(r.UsdValue)
		}
	case *WithdrawalRow:
		var rows []WithdrawalRow
		if err := s.db.Where(query, args...).Find(&rows).Error; err != nil {
			return decimal.Zero(), errs.Transient(err)
		}
		for _, r := range rows {
			total = total.Add(r.UsdValue)
		}
	case *BorrowRow:
		var rows []BorrowRow
		if err := s.db.Where(query, args...).Find(&rows).Error; err != nil {
			return decimal.Zero(), errs.Transient(err)
		}
		for _, r := range rows {
			total = total.Add(r.AmountUsd)
		}
	}
	return total, nil
}
