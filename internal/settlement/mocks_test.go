package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/sannidata/settlement-engine/internal/gateway"
	"github.com/sannidata/settlement-engine/internal/ledger"
	"github.com/sannidata/settlement-engine/internal/wallet"
)

// memLedger is an in-memory ledger.Repository with the same atomicity
// guarantees as the postgres implementation: terminal transitions are a
// mutex-guarded compare-and-swap.
type memLedger struct {
	mu  sync.Mutex
	txs map[string]*ledger.Transaction
}

func newMemLedger() *memLedger {
	return &memLedger{txs: make(map[string]*ledger.Transaction)}
}

func (m *memLedger) Create(tx *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.txs[tx.Reference]; exists {
		return ledger.ErrDuplicateReference
	}
	cp := *tx
	cp.CreatedAt = time.Now()
	m.txs[tx.Reference] = &cp
	return nil
}

func (m *memLedger) GetByReference(ref string) (*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(ref)
}

func (m *memLedger) getLocked(ref string) (*ledger.Transaction, error) {
	tx, ok := m.txs[ref]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memLedger) TransitionToVerifying(ref string) (*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[ref]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if tx.Status.Terminal() {
		cp := *tx
		return &cp, ledger.ErrAlreadyTerminal
	}
	tx.Status = ledger.StatusVerifying
	cp := *tx
	return &cp, nil
}

func (m *memLedger) CommitTerminal(ref string, status ledger.Status, gatewayTxID string) (bool, *ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[ref]
	if !ok {
		return false, nil, ledger.ErrNotFound
	}
	if tx.Status.Terminal() {
		cp := *tx
		return false, &cp, nil
	}

	tx.Status = status
	if gatewayTxID != "" {
		tx.GatewayTxID = &gatewayTxID
	}
	now := time.Now()
	tx.CompletedAt = &now
	cp := *tx
	return true, &cp, nil
}

func (m *memLedger) RecordAttempt(ref string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx, ok := m.txs[ref]; ok && !tx.Status.Terminal() {
		tx.Attempts++
		tx.LastError = lastError
	}
	return nil
}

func (m *memLedger) MarkNeedsReview(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx, ok := m.txs[ref]; ok && !tx.Status.Terminal() {
		tx.NeedsReview = true
	}
	return nil
}

func (m *memLedger) ListNeedingReview(limit, offset int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Transaction
	for _, tx := range m.txs {
		if tx.NeedsReview && !tx.Status.Terminal() {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memLedger) ListByUser(userID string, limit, offset int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Transaction
	for _, tx := range m.txs {
		if tx.UserID.String() == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memLedger) CountByUser(userID string) (int64, error) {
	txs, _ := m.ListByUser(userID, 0, 0)
	return int64(len(txs)), nil
}

// memWallet tracks balances and applied references; credits fail exactly the
// way the real store does when a reference is already present.
type memWallet struct {
	mu       sync.Mutex
	balances map[string]int64
	applied  map[string]bool
	credits  int
}

func newMemWallet() *memWallet {
	return &memWallet{balances: make(map[string]int64), applied: make(map[string]bool)}
}

func (m *memWallet) Credit(userID string, amount int64, currency string, reference string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied[reference] {
		return 0, wallet.ErrReferenceAlreadyApplied
	}
	m.applied[reference] = true
	m.balances[userID] += amount
	m.credits++
	return m.balances[userID], nil
}

func (m *memWallet) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *memWallet) creditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credits
}

func (m *memWallet) GetByUserID(userID string) (*wallet.Wallet, error) {
	return nil, wallet.ErrWalletNotFound
}

func (m *memWallet) Entries(walletID string, limit, offset int) ([]wallet.Entry, error) {
	return nil, nil
}

func (m *memWallet) CountEntries(walletID string) (int64, error) { return 0, nil }

func (m *memWallet) RecomputeBalance(walletID string) (int64, error) { return 0, nil }

// stubGateway scripts verification answers and counts calls.
type stubGateway struct {
	mu          sync.Mutex
	verifyFn    func(reference string) (*gateway.VerifyResult, error)
	verifyCalls int
}

func (s *stubGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	return &gateway.InitializeResult{
		Reference:   req.Reference,
		RedirectURL: "https://checkout.example.com/" + req.Reference,
	}, nil
}

func (s *stubGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	s.mu.Lock()
	s.verifyCalls++
	fn := s.verifyFn
	s.mu.Unlock()
	return fn(reference)
}

func (s *stubGateway) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyCalls
}

type stubLimiter struct {
	mu       sync.Mutex
	reserved map[string]bool
}

func newStubLimiter() *stubLimiter {
	return &stubLimiter{reserved: make(map[string]bool)}
}

func (s *stubLimiter) ReserveCooldown(ctx context.Context, userID string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reserved[userID] {
		return false, nil
	}
	s.reserved[userID] = true
	return true, nil
}

func (s *stubLimiter) reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, userID)
}
