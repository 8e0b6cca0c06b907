// Package ledger implements C3 (continued): the Ledger state machine of
// §4.9 itself, driven by the VaultEvent/RelayerEvent records decoded in
// events.go. Grounded on node/sc/bridge_tx_pool.go's pending-request idiom
// (look up by natural key, transition exactly once) and
// datasync/chaindatafetcher/chaindata_fetcher.go's per-event absorb-and-
// continue error handling (§7).
package ledger

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/ledger/decimal"
	"github.com/chainpipe/chainpipe/ledger/store"
	"github.com/chainpipe/chainpipe/logging"
	"github.com/chainpipe/chainpipe/oracle"
	"github.com/chainpipe/chainpipe/ownership"
	"github.com/chainpipe/chainpipe/pipeline"
	"github.com/chainpipe/chainpipe/relayer"
)

var logger = logging.Named("ledger")

// TransferTopic0 is the ERC20/ERC721 Transfer event topic0 — the two
// standards share one signature text, so REPAY's "resolve asset from the
// co-emitted ERC20 Transfer log" (§4.9) distinguishes them by indexed-topic
// count (ERC20: 3 topics, value in data; ERC721: 4 topics, tokenId
// indexed), not by a different hash.
var TransferTopic0 = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// addressArgs packs a single address value, used to build completeWithdraw's
// additionalData argument (the asset address, ABI-encoded).
var addressArgs = abi.Arguments{{Type: addressTy}}

// relayerStatusApproved/Rejected are this repository's resolution of the
// on-chain CollateralProcess event's uint8 status field, since §6 states
// only the decoded RelayerEvent.status string enum (PENDING/APPROVED/
// REJECTED), not the wire encoding of the raw event.
const (
	relayerStatusApproved uint8 = 1
	relayerStatusRejected uint8 = 2
)

// OwnershipVerifier is the subset of ownership.Engine the Ledger depends on
// (§4.9 steps 2 and the withdraw proof lookup).
type OwnershipVerifier interface {
	VerifyOwnership(ctx context.Context, owner gethcommon.Address, tokenID *big.Int) (bool, error)
	GetProof(ctx context.Context, owner gethcommon.Address, tokenID *big.Int) (*ownership.Proof, error)
}

// LendingPool reports a tokenId's outstanding-debt utilization for one
// borrow protocol, scaled by 1e6 (§4.9 step 4, GLOSSARY).
type LendingPool interface {
	Utilization(ctx context.Context, tokenID *big.Int) (uint64, error)
}

// ChainConfig holds the per-chain wiring the Ledger needs to drive §4.9's
// on-chain callbacks and LTV computation.
type ChainConfig struct {
	VaultHandler gethcommon.Address   // completeWithdraw's "handler" argument
	AssetLTV     map[string]float64   // lowercased asset address -> LTV percent (0-100); missing = zero-LTV (§9)
}

// Ledger is the C3 state machine (§4.9).
type Ledger struct {
	store     store.Store
	ownership OwnershipVerifier
	relayer   relayer.Client
	oracle    oracle.Oracle
	pools     map[string]LendingPool // protocol address (lowercase) -> pool
	chains    map[uint64]ChainConfig
}

// New constructs a Ledger. pools and chains are typically built once from
// process configuration at startup.
func New(st store.Store, ov OwnershipVerifier, rc relayer.Client, po oracle.Oracle, pools map[string]LendingPool, chains map[uint64]ChainConfig) *Ledger {
	return &Ledger{store: st, ownership: ov, relayer: rc, oracle: po, pools: pools, chains: chains}
}

// HasDeposit implements ownership.DepositLookup, the §4.8 escape-hatch
// fallback consulted only when no Merkle root has ever been committed.
func (l *Ledger) HasDeposit(ctx context.Context, owner string, tokenID *big.Int) (bool, error) {
	user, err := l.store.GetUser(ctx, owner)
	if err != nil || user == nil {
		return false, err
	}
	deposits, err := l.store.DepositsForToken(ctx, tokenID.String())
	if err != nil {
		return false, err
	}
	for _, d := range deposits {
		if d.UserID == user.ID {
			return true, nil
		}
	}
	return false, nil
}

// HandleMessage is the MessageBus subscriber entry point: it decodes every
// matched log in msg as a VaultEvent or RelayerEvent and drives the state
// machine. Per §7, a single event's failure is logged and does not stop
// processing of the remaining logs in this message or subsequent messages.
func (l *Ledger) HandleMessage(ctx context.Context, msg pipeline.BlockchainMessage) {
	tx := msg.Transaction
	for _, log := range tx.Logs {
		if ve, ok, err := DecodeVaultEvent(tx.ChainID, tx.Hash, tx.Timestamp, log); err != nil {
			logger.Errorw("vault event decode failed", "tx", tx.Hash, "err", err)
		} else if ok {
			if err := l.HandleVaultEvent(ctx, ve); err != nil {
				logger.Errorw("vault event processing failed", "tx", tx.Hash, "type", ve.Type, "err", err)
			}
			continue
		}

		if re, ok, err := DecodeRelayerEvent(tx.ChainID, tx.Hash, tx.Timestamp, log); err != nil {
			logger.Errorw("relayer event decode failed", "tx", tx.Hash, "err", err)
		} else if ok {
			if re.Type == RelayerRepay {
				re.Asset = resolveRepayAsset(tx.Logs)
			}
			if err := l.HandleRelayerEvent(ctx, re); err != nil {
				logger.Errorw("relayer event processing failed", "tx", tx.Hash, "type", re.Type, "err", err)
			}
		}
	}
}

// resolveRepayAsset implements §4.9's "resolve asset address from the
// co-emitted ERC20 Transfer log (same tx)": among the message's matched
// logs, the ERC20-shaped Transfer (3 topics: topic0 + from + to, value in
// data) is the repaid asset's contract address.
func resolveRepayAsset(logs []pipeline.MatchedLog) string {
	for _, log := range logs {
		if len(log.Topics) == 3 && gethcommon.HexToHash(log.MatchedHash) == TransferTopic0 {
			return log.Address
		}
	}
	return ""
}

// HandleVaultEvent implements the §4.9 DEPOSIT/WITHDRAW_REQUEST/WITHDRAW
// transitions, after the §3 dedup check.
func (l *Ledger) HandleVaultEvent(ctx context.Context, e VaultEvent) error {
	tokenID := ""
	if e.TokenID != nil {
		tokenID = e.TokenID.String()
	}
	recorded, err := l.store.RecordVaultEvent(ctx, store.VaultEventRow{
		ChainID:  e.ChainID,
		TxHash:   e.TxHash,
		Type:     store.VaultEventType(e.Type),
		TokenID:  tokenID,
		Asset:    e.Asset,
		LogIndex: e.LogIndex,
	})
	if err != nil {
		return err
	}
	if !recorded {
		logger.Infow("dropping duplicate vault event", "key", e.DedupKey())
		return nil
	}

	usdValue, err := l.oracle.USDValue(ctx, e.ChainID, e.Asset, e.Amount)
	if err != nil {
		return err
	}
	e.UsdValue = usdValue

	switch e.Type {
	case VaultDeposit:
		return l.handleDeposit(ctx, e)
	case VaultWithdrawRequest:
		return l.handleWithdrawRequest(ctx, e)
	case VaultWithdrawEvent:
		return l.handleWithdraw(ctx, e)
	default:
		return errs.Invariant("ledger: unknown vault event type %q", e.Type)
	}
}

func (l *Ledger) handleDeposit(ctx context.Context, e VaultEvent) error {
	user, err := l.store.UpsertUser(ctx, e.Sender)
	if err != nil {
		return err
	}
	tokenID := ""
	if e.TokenID != nil {
		tokenID = e.TokenID.String()
	}
	if err := l.store.AddDeposit(ctx, store.DepositRow{
		UserID:    user.ID,
		ChainID:   e.ChainID,
		TxHash:    e.TxHash,
		Asset:     e.Asset,
		Vault:     e.Vault,
		TokenID:   tokenID,
		Amount:    e.Amount.String(),
		UsdValue:  e.UsdValue,
		Timestamp: e.Timestamp,
	}); err != nil {
		return err
	}
	user.TotalUsdBalance = user.TotalUsdBalance.Add(e.UsdValue)
	user.FloatingUsdBalance = user.FloatingUsdBalance.Add(e.UsdValue)
	return l.store.SaveUser(ctx, user)
}

func (l *Ledger) handleWithdrawRequest(ctx context.Context, e VaultEvent) error {
	user, err := l.store.UpsertUser(ctx, e.Sender)
	if err != nil {
		return err
	}

	deposits, err := l.store.SumDeposits(ctx, user.ID)
	if err != nil {
		return err
	}
	completed, err := l.store.SumCompletedWithdrawals(ctx, user.ID)
	if err != nil {
		return err
	}
	pending, err := l.store.SumPendingWithdrawals(ctx, user.ID)
	if err != nil {
		return err
	}
	activeBorrows, err := l.store.SumActiveBorrows(ctx, user.ID)
	if err != nil {
		return err
	}
	available := deposits.Sub(completed).Sub(pending).Sub(activeBorrows)

	tokenID := ""
	if e.TokenID != nil {
		tokenID = e.TokenID.String()
	}

	if available.Cmp(e.UsdValue) < 0 {
		_, err := l.store.AddWithdrawal(ctx, store.WithdrawalRow{
			UserID:    user.ID,
			ChainID:   e.ChainID,
			RequestID: e.RequestID,
			Asset:     e.Asset,
			TokenID:   tokenID,
			Amount:    e.Amount.String(),
			UsdValue:  e.UsdValue,
			Status:    store.WithdrawalRejected,
			Timestamp: e.Timestamp,
		})
		return err
	}

	row, err := l.store.AddWithdrawal(ctx, store.WithdrawalRow{
		UserID:    user.ID,
		ChainID:   e.ChainID,
		RequestID: e.RequestID,
		Asset:     e.Asset,
		TokenID:   tokenID,
		Amount:    e.Amount.String(),
		UsdValue:  e.UsdValue,
		Status:    store.WithdrawalPending,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return err
	}

	user.FloatingUsdBalance = user.FloatingUsdBalance.Sub(e.UsdValue)
	if err := l.store.SaveUser(ctx, user); err != nil {
		return err
	}

	return l.completeWithdraw(ctx, e.ChainID, row, gethcommon.HexToAddress(e.Sender))
}

// completeWithdraw drives the §4.9 on-chain callback for an approved
// withdrawal: the proof is the Merkle proof for (sender, tokenId), falling
// back to [root] if the proof itself is empty, or [] if no root exists yet.
func (l *Ledger) completeWithdraw(ctx context.Context, chainID uint64, row store.WithdrawalRow, sender gethcommon.Address) error {
	cfg, ok := l.chains[chainID]
	if !ok {
		return errs.Invariant("ledger: no chain config for chain %d", chainID)
	}
	tokenID, ok := new(big.Int).SetString(row.TokenID, 10)
	if !ok {
		return errs.Invariant("ledger: invalid token id %q on withdrawal %s", row.TokenID, row.RequestID)
	}

	var proof [][32]byte
	p, err := l.ownership.GetProof(ctx, sender, tokenID)
	if err != nil {
		logger.Errorw("merkle proof lookup failed for withdraw", "requestId", row.RequestID, "err", err)
	} else if p != nil && len(p.Proof) > 0 {
		proof = p.Proof
	} else if p != nil {
		proof = [][32]byte{p.Root}
	}

	additionalData, err := encodeAddress(gethcommon.HexToAddress(row.Asset))
	if err != nil {
		return err
	}
	requestID, err := parseBytes32(row.RequestID)
	if err != nil {
		return err
	}
	return l.relayer.CompleteWithdraw(ctx, chainID, cfg.VaultHandler, requestID, proof, additionalData)
}

func (l *Ledger) handleWithdraw(ctx context.Context, e VaultEvent) error {
	row, err := l.store.FindWithdrawalByRequestID(ctx, e.ChainID, e.RequestID)
	if err != nil {
		return err
	}
	if row == nil {
		// §9 Open Question: preserve primary-only (requestId) semantics;
		// the user/asset/amount fallback is kept only as an explicit,
		// logged escape hatch, never silently overwriting a different
		// pending row's requestId.
		user, err := l.store.GetUser(ctx, e.Sender)
		if err != nil || user == nil {
			return err
		}
		row, err = l.store.FindPendingWithdrawal(ctx, user.ID, e.Asset, e.Amount.String())
		if err != nil || row == nil {
			return err
		}
		logger.Warnw("withdraw matched by user/asset/amount fallback, not requestId", "requestId", e.RequestID, "fallbackRow", row.ID)
	}
	if row.Status != store.WithdrawalPending {
		return errs.Invariant("ledger: withdraw for non-pending row %d (status %s)", row.ID, row.Status)
	}

	row.Status = store.WithdrawalCompleted
	if err := l.store.SaveWithdrawal(ctx, *row); err != nil {
		return err
	}

	user, err := l.store.GetUser(ctx, e.Sender)
	if err != nil {
		return err
	}
	if user == nil {
		return errs.Invariant("ledger: withdraw for unknown user %s", e.Sender)
	}
	user.TotalUsdBalance = user.TotalUsdBalance.Sub(e.UsdValue)
	return l.store.SaveUser(ctx, *user)
}

// HandleRelayerEvent implements §4.9's COLLATERAL_REQUEST/COLLATERAL_PROCESS/REPAY.
func (l *Ledger) HandleRelayerEvent(ctx context.Context, e RelayerEvent) error {
	switch e.Type {
	case RelayerCollateralRequest:
		return l.handleCollateralRequest(ctx, e)
	case RelayerCollateralProcess:
		return l.handleCollateralProcess(ctx, e)
	case RelayerRepay:
		return l.handleRepay(ctx, e)
	default:
		return errs.Invariant("ledger: unknown relayer event type %q", e.Type)
	}
}

func (l *Ledger) handleCollateralRequest(ctx context.Context, e RelayerEvent) error {
	tokenIDStr := ""
	if e.TokenID != nil {
		tokenIDStr = e.TokenID.String()
	}
	recorded, err := l.store.RecordRelayerEvent(ctx, store.RelayerEventRow{
		ChainID:   e.ChainID,
		RequestID: e.RequestID,
		Type:      store.RelayerEventCollateralRequest,
		TokenID:   tokenIDStr,
		Protocol:  e.Protocol,
		Asset:     e.Asset,
		Sender:    e.Sender,
		Amount:    e.Amount.String(),
		Deadline:  e.Deadline,
		Data:      hexString(e.Data),
		Signature: hexString(e.Signature),
		Status:    store.RelayerEventPending,
	})
	if err != nil {
		return err
	}
	if !recorded {
		logger.Infow("dropping duplicate collateral request", "key", e.DedupKey())
		return nil
	}

	approved, reason, amountUsd, err := l.evaluateCollateralRequest(ctx, e)
	if err != nil {
		return err
	}

	row, err := l.store.FindRelayerEvent(ctx, e.ChainID, e.RequestID, store.RelayerEventCollateralRequest)
	if err != nil {
		return err
	}
	if row == nil {
		return errs.Invariant("ledger: collateral request %s vanished after record", e.RequestID)
	}
	row.AmountUsd = amountUsd
	if approved {
		row.Status = store.RelayerEventApproved
	} else {
		row.Status = store.RelayerEventRejected
		row.ErrorData = reason
	}
	if err := l.store.SaveRelayerEvent(ctx, *row); err != nil {
		return err
	}

	requestID, err := parseBytes32(e.RequestID)
	if err != nil {
		return err
	}
	status, errorData, err := l.relayer.ProcessRequest(ctx, e.ChainID, requestID, approved)
	if err != nil {
		return err
	}
	logger.Infow("processRequest submitted", "requestId", e.RequestID, "approved", approved, "status", status, "errorData", string(errorData))
	return nil
}

// evaluateCollateralRequest runs §4.9 steps 2-5: deadline/ownership
// validation, LTV computation, utilization computation and the approval
// decision.
func (l *Ledger) evaluateCollateralRequest(ctx context.Context, e RelayerEvent) (approved bool, reason string, amountUsd decimal.USD, err error) {
	if e.Deadline != 0 && int64(e.Deadline) < time.Now().Unix() {
		return false, "deadline passed", decimal.Zero(), nil
	}
	user, err := l.store.GetUser(ctx, e.Sender)
	if err != nil {
		return false, "", decimal.Zero(), err
	}
	if user == nil {
		return false, "no deposits on record", decimal.Zero(), nil
	}
	owns, err := l.ownership.VerifyOwnership(ctx, gethcommon.HexToAddress(e.Sender), e.TokenID)
	if err != nil {
		return false, "", decimal.Zero(), err
	}
	if !owns {
		return false, "NFT ownership could not be verified", decimal.Zero(), nil
	}

	_, totalLTV, err := l.tokenValueAndLTV(ctx, e.TokenID)
	if err != nil {
		return false, "", decimal.Zero(), err
	}
	utilization, err := l.totalUtilization(ctx, e.TokenID)
	if err != nil {
		return false, "", decimal.Zero(), err
	}
	amountUsd, err = l.oracle.USDValue(ctx, e.ChainID, e.Asset, e.Amount)
	if err != nil {
		return false, "", decimal.Zero(), err
	}

	if utilization.Add(amountUsd).Cmp(totalLTV) <= 0 {
		return true, "", amountUsd, nil
	}
	return false, "Exceeds LTV limits", amountUsd, nil
}

// tokenValueAndLTV implements §4.9 step 3: sum of per-asset usdValue and
// usdValue*ltvRatio across every deposit recorded for tokenID, across
// chains. A missing LTV config contributes to value but not to LTV (§9).
func (l *Ledger) tokenValueAndLTV(ctx context.Context, tokenID *big.Int) (totalValue, totalLTV decimal.USD, err error) {
	deposits, err := l.store.DepositsForToken(ctx, tokenID.String())
	if err != nil {
		return decimal.Zero(), decimal.Zero(), err
	}
	totalValue, totalLTV = decimal.Zero(), decimal.Zero()
	for _, d := range deposits {
		totalValue = totalValue.Add(d.UsdValue)
		cfg, ok := l.chains[d.ChainID]
		if !ok {
			logger.Warnw("no chain config for deposit, skipping LTV", "chain", d.ChainID, "asset", d.Asset)
			continue
		}
		percent, ok := cfg.AssetLTV[lower(d.Asset)]
		if !ok {
			logger.Warnw("NO LTV CONFIGURED", "chain", d.ChainID, "asset", d.Asset)
			continue
		}
		// percent is e.g. 75.0 for 75%; ratio as integer numerator/denominator
		// keeps this on decimal.USD's scaled-integer arithmetic.
		totalLTV = totalLTV.Add(d.UsdValue.MulRatio(int64(percent*100), 10000))
	}
	return totalValue, totalLTV, nil
}

// totalUtilization implements §4.9 step 4: sum, over every distinct
// protocol with an approved borrow against tokenID, of that protocol's
// LendingPool.Utilization(tokenId)/1e6.
func (l *Ledger) totalUtilization(ctx context.Context, tokenID *big.Int) (decimal.USD, error) {
	borrows, err := l.store.ActiveBorrowsForToken(ctx, tokenID.String())
	if err != nil {
		return decimal.Zero(), err
	}
	seen := make(map[string]struct{})
	total := decimal.Zero()
	for _, b := range borrows {
		key := lower(b.Protocol)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pool, ok := l.pools[key]
		if !ok {
			logger.Warnw("no lending pool registered for protocol", "protocol", b.Protocol)
			continue
		}
		scaled, err := pool.Utilization(ctx, tokenID)
		if err != nil {
			logger.Errorw("utilization lookup failed", "protocol", b.Protocol, "err", err)
			continue
		}
		total = total.Add(decimal.FromFloat64(float64(scaled) / 1_000_000))
	}
	return total, nil
}

func (l *Ledger) handleCollateralProcess(ctx context.Context, e RelayerEvent) error {
	row, err := l.store.FindRelayerEvent(ctx, e.ChainID, e.RequestID, store.RelayerEventCollateralRequest)
	if err != nil {
		return err
	}
	if row == nil {
		logger.Warnw("collateral process arrived before request, dropping", "requestId", e.RequestID)
		return nil
	}
	// The request handler already recorded its APPROVED/REJECTED decision
	// before submitting processRequest; a set ProcessTxHash marks a row whose
	// PROCESS event has already been applied.
	if row.ProcessTxHash != "" {
		logger.Infow("dropping duplicate/late collateral process", "requestId", e.RequestID, "status", row.Status)
		return nil
	}

	approved := e.Status == relayerStatusApproved
	if approved {
		row.Status = store.RelayerEventApproved
	} else {
		row.Status = store.RelayerEventRejected
	}
	row.ErrorData = hexString(e.ErrorData)
	row.ProcessTxHash = e.TxHash
	if err := l.store.SaveRelayerEvent(ctx, *row); err != nil {
		return err
	}
	if !approved {
		return nil
	}

	user, err := l.store.GetUser(ctx, row.Sender)
	if err != nil {
		return err
	}
	if user == nil {
		return errs.Invariant("ledger: collateral process for unknown user %s", row.Sender)
	}
	if err := l.store.AddBorrow(ctx, store.BorrowRow{
		UserID:        user.ID,
		ChainID:       row.ChainID,
		RequestID:     row.RequestID,
		TokenID:       row.TokenID,
		Protocol:      row.Protocol,
		Asset:         row.Asset,
		AmountUsd:     row.AmountUsd,
		Status:        store.BorrowActive,
		LoanStartDate: time.Unix(int64(e.Timestamp), 0),
	}); err != nil {
		return err
	}
	user.BorrowedUsdAmount = user.BorrowedUsdAmount.Add(row.AmountUsd)
	user.FloatingUsdBalance = user.FloatingUsdBalance.Add(row.AmountUsd)
	return l.store.SaveUser(ctx, *user)
}

func (l *Ledger) handleRepay(ctx context.Context, e RelayerEvent) error {
	if e.Asset == "" {
		return errs.Decode(errs.Invariant("ledger: repay %s has no resolvable asset (no co-emitted Transfer log)", e.TxHash))
	}
	user, err := l.store.GetUser(ctx, e.Sender)
	if err != nil {
		return err
	}
	if user == nil {
		return errs.Invariant("ledger: repay from unknown user %s", e.Sender)
	}

	repaidUsd, err := l.oracle.USDValue(ctx, e.ChainID, e.Asset, e.Amount)
	if err != nil {
		return err
	}
	// REPAY never drives borrowedUsdAmount below zero (§8): cap at the
	// user's current active-borrow total.
	repaidUsd = decimal.Min(repaidUsd, user.BorrowedUsdAmount)

	borrows, err := l.store.ActiveBorrowsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	remaining := repaidUsd
	now := time.Unix(int64(e.Timestamp), 0)
	for i := range borrows {
		if remaining.IsZero() {
			break
		}
		b := borrows[i]
		if b.AmountUsd.Cmp(remaining) <= 0 {
			remaining = remaining.Sub(b.AmountUsd)
			b.AmountUsd = decimal.Zero()
			b.Status = store.BorrowRepaid
			b.LoanEndDate = &now
		} else {
			b.AmountUsd = b.AmountUsd.Sub(remaining)
			remaining = decimal.Zero()
		}
		if err := l.store.SaveBorrow(ctx, b); err != nil {
			return err
		}
	}

	user.BorrowedUsdAmount = user.BorrowedUsdAmount.Sub(repaidUsd)
	user.FloatingUsdBalance = user.FloatingUsdBalance.Add(repaidUsd)
	return l.store.SaveUser(ctx, *user)
}

// ProcessPendingRequests is the §9 "processPendingRequests sweep": §9's
// Open Question says the original has no scheduler for it, so this is an
// explicit method invoked once at startup (SPEC_FULL.md), not on a timer.
// It re-evaluates every still-PENDING COLLATERAL_REQUEST row, in case a
// process crash left one unresolved after the dedup row was recorded but
// before processRequest was submitted.
func (l *Ledger) ProcessPendingRequests(ctx context.Context) error {
	pending, err := l.store.PendingRelayerEvents(ctx, store.RelayerEventCollateralRequest)
	if err != nil {
		return err
	}
	for _, row := range pending {
		tokenID, ok := new(big.Int).SetString(row.TokenID, 10)
		if !ok {
			logger.Errorw("skipping pending request with invalid token id", "requestId", row.RequestID)
			continue
		}
		amount, ok := new(big.Int).SetString(row.Amount, 10)
		if !ok {
			logger.Errorw("skipping pending request with invalid amount", "requestId", row.RequestID)
			continue
		}
		e := RelayerEvent{
			Type:      RelayerCollateralRequest,
			ChainID:   row.ChainID,
			RequestID: row.RequestID,
			TokenID:   tokenID,
			Protocol:  row.Protocol,
			Asset:     row.Asset,
			Sender:    row.Sender,
			Amount:    amount,
			Deadline:  row.Deadline,
		}
		approved, reason, amountUsd, err := l.evaluateCollateralRequest(ctx, e)
		if err != nil {
			logger.Errorw("re-evaluation failed for pending request", "requestId", row.RequestID, "err", err)
			continue
		}
		row.AmountUsd = amountUsd
		if approved {
			row.Status = store.RelayerEventApproved
		} else {
			row.Status = store.RelayerEventRejected
			row.ErrorData = reason
		}
		if err := l.store.SaveRelayerEvent(ctx, row); err != nil {
			logger.Errorw("failed to persist re-evaluated request", "requestId", row.RequestID, "err", err)
			continue
		}
		requestID, err := parseBytes32(row.RequestID)
		if err != nil {
			logger.Errorw("invalid request id, skipping on-chain callback", "requestId", row.RequestID, "err", err)
			continue
		}
		if _, _, err := l.relayer.ProcessRequest(ctx, row.ChainID, requestID, approved); err != nil {
			logger.Errorw("processRequest submission failed during sweep", "requestId", row.RequestID, "err", err)
		}
	}
	return nil
}

func lower(s string) string { return strings.ToLower(gethcommon.HexToAddress(s).Hex()) }

func hexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return gethcommon.Bytes2Hex(b)
}

func parseBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	h := gethcommon.HexToHash(hexStr)
	copy(out[:], h.Bytes())
	if hexStr == "" {
		return out, errs.Invariant("ledger: empty request id")
	}
	return out, nil
}

func encodeAddress(addr gethcommon.Address) ([]byte, error) {
	return addressArgs.Pack(addr)
}
