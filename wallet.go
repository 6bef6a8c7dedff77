package walletauth

import (
	"context"
	"crypto/ecdsa"
	"slices"
	"strings"
	"sync"

	"github.com/layer-3/walletauth/internal/eth"
)

// Approver decides whether the user agrees to sign message
type Approver func(ctx context.Context, address, message string) bool

// LocalWallet is a Wallet backed by an in-process private key
type LocalWallet struct {
	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	connected bool
	approve   Approver
	listeners []func(string)
}

// NewLocalWallet creates a disconnected wallet holding key. A nil key yields an unavailable wallet.
func NewLocalWallet(key *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{key: key}
}

// SetApprover installs the signing approval callback; nil approves everything
func (w *LocalWallet) SetApprover(approve Approver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approve = approve
}

// Connect exposes the wallet's account and returns its address
func (w *LocalWallet) Connect() (string, error) {
	w.mu.Lock()
	if w.key == nil {
		w.mu.Unlock()
		return "", ErrWalletNotAvailable
	}
	if w.connected {
		address := w.address()
		w.mu.Unlock()
		return address, nil
	}
	w.connected = true
	address := w.address()
	listeners := w.snapshot()
	w.mu.Unlock()

	notify(listeners, address)
	return address, nil
}

// Disconnect hides the account until the next Connect
func (w *LocalWallet) Disconnect() {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return
	}
	w.connected = false
	listeners := w.snapshot()
	w.mu.Unlock()

	notify(listeners, "")
}

// SwitchKey replaces the active account
func (w *LocalWallet) SwitchKey(key *ecdsa.PrivateKey) {
	w.mu.Lock()
	w.key = key
	if key == nil {
		w.connected = false
	}
	address := ""
	if w.connected {
		address = w.address()
	}
	listeners := w.snapshot()
	w.mu.Unlock()

	notify(listeners, address)
}

func (w *LocalWallet) IsAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key != nil
}

func (w *LocalWallet) CurrentAddress() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil || !w.connected {
		return "", false
	}
	return w.address(), true
}

func (w *LocalWallet) Sign(ctx context.Context, message string) (string, error) {
	w.mu.Lock()
	key, connected, approve := w.key, w.connected, w.approve
	w.mu.Unlock()

	if key == nil {
		return "", ErrWalletNotAvailable
	}
	if !connected {
		return "", ErrWalletNotConnected
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if approve != nil && !approve(ctx, eth.AddressOf(key).Hex(), message) {
		return "", ErrUserRejectedSigning
	}

	return eth.SignText(key, message)
}

func (w *LocalWallet) OnAccountsChanged(fn func(address string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// address must be called with mu held and key set
func (w *LocalWallet) address() string {
	return strings.ToLower(eth.AddressOf(w.key).Hex())
}

func (w *LocalWallet) snapshot() []func(string) {
	return slices.Clone(w.listeners)
}

func notify(listeners []func(string), address string) {
	for _, fn := range listeners {
		fn(address)
	}
}
