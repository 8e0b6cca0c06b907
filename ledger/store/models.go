package store

import (
	"time"

	"github.com/chainpipe/chainpipe/ledger/decimal"
)

// UserRow is the §3 User entity: one row per wallet address, holding the
// running USD balances the Ledger state machine mutates.
type UserRow struct {
	ID                 uint64       `gorm:"primary_key"`
	WalletAddress       string       `gorm:"column:wallet_address;unique_index"` // lowercase
	TotalUsdBalance     decimal.USD  `gorm:"column:total_usd_balance;type:varchar(64)"`
	FloatingUsdBalance  decimal.USD  `gorm:"column:floating_usd_balance;type:varchar(64)"`
	BorrowedUsdAmount   decimal.USD  `gorm:"column:borrowed_usd_amount;type:varchar(64)"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (UserRow) TableName() string { return "users" }

// DepositRow is one Deposit ledger record.
type DepositRow struct {
	ID          uint64      `gorm:"primary_key"`
	UserID      uint64      `gorm:"column:user_id;index"`
	ChainID     uint64      `gorm:"column:chain_id"`
	TxHash      string      `gorm:"column:tx_hash"`
	Asset       string      `gorm:"column:asset"`
	Vault       string      `gorm:"column:vault"`
	TokenID     string      `gorm:"column:token_id"`
	Amount      string      `gorm:"column:amount"` // raw on-chain amount, decimal string
	UsdValue    decimal.USD `gorm:"column:usd_value;type:varchar(64)"`
	Timestamp   uint64      `gorm:"column:timestamp"`
	CreatedAt   time.Time
}

func (DepositRow) TableName() string { return "deposits" }

// WithdrawalStatus is the §3 Withdrawal lifecycle state.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
)

// WithdrawalRow is one Withdrawal ledger record, keyed by requestId.
type WithdrawalRow struct {
	ID        uint64           `gorm:"primary_key"`
	UserID    uint64           `gorm:"column:user_id;index"`
	ChainID   uint64           `gorm:"column:chain_id"`
	RequestID string           `gorm:"column:request_id;index"`
	Asset     string           `gorm:"column:asset"`
	TokenID   string           `gorm:"column:token_id"` // needed to look up the Merkle proof for completeWithdraw

	Amount    string           `gorm:"column:amount"`
	UsdValue  decimal.USD      `gorm:"column:usd_value;type:varchar(64)"`
	Status    WithdrawalStatus `gorm:"column:status"`
	Timestamp uint64           `gorm:"column:timestamp"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WithdrawalRow) TableName() string { return "withdrawals" }

// BorrowStatus is the §3 Borrow lifecycle state.
type BorrowStatus string

const (
	BorrowActive BorrowStatus = "ACTIVE"
	BorrowRepaid BorrowStatus = "REPAID"
)

// BorrowRow is one Borrow ledger record.
type BorrowRow struct {
	ID           uint64       `gorm:"primary_key"`
	UserID       uint64       `gorm:"column:user_id;index"`
	ChainID      uint64       `gorm:"column:chain_id"`
	RequestID    string       `gorm:"column:request_id;index"`
	TokenID      string       `gorm:"column:token_id"`
	Protocol     string       `gorm:"column:protocol"`
	Asset        string       `gorm:"column:asset"`
	AmountUsd    decimal.USD  `gorm:"column:amount_usd;type:varchar(64)"`
	Status       BorrowStatus `gorm:"column:status"`
	LoanStartDate time.Time   `gorm:"column:loan_start_date"`
	LoanEndDate  *time.Time   `gorm:"column:loan_end_date"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (BorrowRow) TableName() string { return "borrows" }

// VaultEventType is the §3 VaultEvent discriminator.
type VaultEventType string

const (
	VaultEventDeposit          VaultEventType = "DEPOSIT"
	VaultEventWithdrawRequest  VaultEventType = "WITHDRAW_REQUEST"
	VaultEventWithdraw         VaultEventType = "WITHDRAW"
)

// VaultEventRow records a processed VaultEvent for the §3 dedup key
// (txHash, type, tokenId, asset).
type VaultEventRow struct {
	ID       uint64         `gorm:"primary_key"`
	ChainID  uint64         `gorm:"column:chain_id"`
	TxHash   string         `gorm:"column:tx_hash;unique_index:idx_vault_event_dedup"`
	Type     VaultEventType `gorm:"column:type;unique_index:idx_vault_event_dedup"`
	TokenID  string         `gorm:"column:token_id;unique_index:idx_vault_event_dedup"`
	Asset    string         `gorm:"column:asset;unique_index:idx_vault_event_dedup"`
	LogIndex uint           `gorm:"column:log_index"`
	CreatedAt time.Time
}

func (VaultEventRow) TableName() string { return "vault_events" }

// RelayerEventType is the §3 RelayerEvent discriminator.
type RelayerEventType string

const (
	RelayerEventCollateralRequest RelayerEventType = "COLLATERAL_REQUEST"
	RelayerEventCollateralProcess RelayerEventType = "COLLATERAL_PROCESS"
	RelayerEventRepay             RelayerEventType = "REPAY"
)

// RelayerEventStatus mirrors the status field of a COLLATERAL_REQUEST.
type RelayerEventStatus string

const (
	RelayerEventPending  RelayerEventStatus = "PENDING"
	RelayerEventApproved RelayerEventStatus = "APPROVED"
	RelayerEventRejected RelayerEventStatus = "REJECTED"
)

// RelayerEventRow records a processed RelayerEvent for the §3 dedup key
// (requestId, chainId, type) and the COLLATERAL_REQUEST/PROCESS handshake.
type RelayerEventRow struct {
	ID            uint64             `gorm:"primary_key"`
	ChainID       uint64             `gorm:"column:chain_id;unique_index:idx_relayer_event_dedup"`
	RequestID     string             `gorm:"column:request_id;unique_index:idx_relayer_event_dedup"`
	Type          RelayerEventType   `gorm:"column:type;unique_index:idx_relayer_event_dedup"`
	TokenID       string             `gorm:"column:token_id"`
	Protocol      string             `gorm:"column:protocol"`
	Asset         string             `gorm:"column:asset"`
	Sender        string             `gorm:"column:sender"`
	Amount        string             `gorm:"column:amount"`
	Deadline      uint64             `gorm:"column:deadline"`
	Data          string             `gorm:"column:data"`
	Signature     string             `gorm:"column:signature"`
	Status        RelayerEventStatus `gorm:"column:status"`
	AmountUsd     decimal.USD        `gorm:"column:amount_usd;type:varchar(64)"` // computed at COLLATERAL_REQUEST time, reused on APPROVED
	ErrorData     string             `gorm:"column:error_data"`
	ProcessTxHash string             `gorm:"column:process_tx_hash"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (RelayerEventRow) TableName() string { return "relayer_events" }
