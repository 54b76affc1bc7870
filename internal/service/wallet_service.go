package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/crypto"
	"github.com/alanyoungcy/swapbot/internal/domain"
)

// MonitorStarter is the part of the monitor a wallet connection needs.
type MonitorStarter interface {
	Start(interval time.Duration)
}

// WalletMode is the signing strategy of the connected wallet.
type WalletMode string

const (
	WalletModeHeldKey WalletMode = "held_key"
	WalletModeClient  WalletMode = "client"
)

// WalletInfo describes the connected wallet.
type WalletInfo struct {
	PublicKey   string     `json:"publicKey"`
	Mode        WalletMode `json:"mode"`
	Lamports    uint64     `json:"lamports"`
	SOL         string     `json:"sol"`
	ConnectedAt time.Time  `json:"connectedAt"`
}

// WalletService holds the single wallet the engine trades for.
type WalletService struct {
	ledger          domain.Ledger
	monitor         MonitorStarter // optional
	monitorInterval time.Duration
	signTimeout     time.Duration
	logger          *slog.Logger

	mu     sync.RWMutex
	signer domain.Signer
	client *crypto.ClientSigner
	info   WalletInfo
}

// NewWalletService creates a WalletService. monitor may be nil; when set,
// every successful connection (re)starts monitoring at monitorInterval.
func NewWalletService(
	ledger domain.Ledger,
	monitor MonitorStarter,
	monitorInterval time.Duration,
	clientSignTimeout time.Duration,
	logger *slog.Logger,
) *WalletService {
	if monitorInterval <= 0 {
		monitorInterval = 30 * time.Second
	}
	return &WalletService{
		ledger:          ledger,
		monitor:         monitor,
		monitorInterval: monitorInterval,
		signTimeout:     clientSignTimeout,
		logger:          logger.With(slog.String("component", "wallet_service")),
	}
}

// ConnectWithPrivateKey installs a held-key signer for the base58 secret key.
func (s *WalletService) ConnectWithPrivateKey(ctx context.Context, privateKey string) (WalletInfo, error) {
	key, err := crypto.ParsePrivateKey(privateKey)
	if err != nil {
		return WalletInfo{}, fmt.Errorf("wallet_service: %w: %w", domain.ErrInvalidArgument, err)
	}
	return s.connect(ctx, crypto.NewHeldKeySigner(key), nil, WalletModeHeldKey)
}

// ConnectWithPublicKey installs a client signer: transactions are handed to
// the wallet owner through signing requests.
func (s *WalletService) ConnectWithPublicKey(ctx context.Context, publicKey string) (WalletInfo, error) {
	cs, err := crypto.NewClientSigner(publicKey, s.signTimeout)
	if err != nil {
		return WalletInfo{}, fmt.Errorf("wallet_service: %w: %w", domain.ErrInvalidArgument, err)
	}
	return s.connect(ctx, cs, cs, WalletModeClient)
}

// AttachMonitor sets the monitor started on every connection. The monitor
// sells through the executor, which in turn resolves signers here, so it can
// only be attached once both exist.
func (s *WalletService) AttachMonitor(m MonitorStarter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor = m
}

// Use installs an already-built signer without touching the ledger. Headless
// modes call it at startup.
func (s *WalletService) Use(signer domain.Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signer = signer
	s.client = nil
	s.info = WalletInfo{PublicKey: signer.PublicKey(), Mode: WalletModeHeldKey, ConnectedAt: time.Now().UTC()}
}

func (s *WalletService) connect(ctx context.Context, signer domain.Signer, client *crypto.ClientSigner, mode WalletMode) (WalletInfo, error) {
	lamports, err := s.ledger.Balance(ctx, signer.PublicKey())
	if err != nil {
		return WalletInfo{}, fmt.Errorf("wallet_service: balance: %w", err)
	}

	info := WalletInfo{
		PublicKey:   signer.PublicKey(),
		Mode:        mode,
		Lamports:    lamports,
		SOL:         domain.LamportsToSOL(lamports).String(),
		ConnectedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.signer = signer
	s.client = client
	s.info = info
	monitor := s.monitor
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "wallet connected",
		slog.String("public_key", info.PublicKey),
		slog.String("mode", string(mode)),
		slog.String("balance_sol", info.SOL),
	)

	if monitor != nil {
		monitor.Start(s.monitorInterval)
	}
	return info, nil
}

// Current returns the connected signer or domain.ErrNoWallet.
func (s *WalletService) Current() (domain.Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signer == nil {
		return nil, domain.ErrNoWallet
	}
	return s.signer, nil
}

// Info returns the connected wallet description.
func (s *WalletService) Info() (WalletInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info, s.signer != nil
}

// SignerFor returns the signer for owner. Only the connected wallet can sign.
func (s *WalletService) SignerFor(owner string) (domain.Signer, error) {
	signer, err := s.Current()
	if err != nil {
		return nil, err
	}
	if signer.PublicKey() != owner {
		return nil, fmt.Errorf("wallet_service: no signer for %s: %w", owner, domain.ErrNoWallet)
	}
	return signer, nil
}

// ClientSigner returns the pending-request side of a client-signing wallet.
func (s *WalletService) ClientSigner() (*crypto.ClientSigner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.client != nil
}
