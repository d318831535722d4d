package core

import (
	"math/big"
	"sync"

	"github.com/dominant-strategies/go-mempool/common"
)

// MemoryState is an in-memory StateReader for tests and standalone runs.
// Unknown accounts read as nonce zero with a zero balance.
type MemoryState struct {
	mu       sync.RWMutex
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*big.Int),
	}
}

func (s *MemoryState) GetNonce(addr common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[addr], nil
}

func (s *MemoryState) GetBalance(addr common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if balance, ok := s.balances[addr]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

// SetNonce sets the committed nonce of an account.
func (s *MemoryState) SetNonce(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[addr] = nonce
}

// SetBalance sets the balance of an account.
func (s *MemoryState) SetBalance(addr common.Address, balance *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[addr] = new(big.Int).Set(balance)
}

// AddBalance credits an account.
func (s *MemoryState) AddBalance(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[addr]
	if !ok {
		balance = new(big.Int)
		s.balances[addr] = balance
	}
	balance.Add(balance, amount)
}
