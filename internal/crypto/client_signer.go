package crypto

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var _ domain.Signer = (*ClientSigner)(nil)

// SigningRequest is an unsigned transaction waiting for the wallet owner.
type SigningRequest struct {
	ID          string    `json:"id"`
	PublicKey   string    `json:"publicKey"`
	Transaction string    `json:"transaction"` // base64
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type pendingSign struct {
	req     SigningRequest
	message []byte
	result  chan []byte
}

// ClientSigner hands unsigned transactions to an external wallet and waits
// for the signed bytes to come back through Complete. Sign blocks until the
// client answers or the signing window closes.
type ClientSigner struct {
	pubkey  sol.PublicKey
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSign
}

// NewClientSigner creates a client-side signer for the wallet at publicKey.
func NewClientSigner(publicKey string, timeout time.Duration) (*ClientSigner, error) {
	pk, err := sol.PublicKeyFromBase58(publicKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: client signer: invalid public key: %w", err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ClientSigner{
		pubkey:  pk,
		timeout: timeout,
		pending: make(map[string]*pendingSign),
	}, nil
}

// PublicKey returns the base58 wallet address.
func (s *ClientSigner) PublicKey() string {
	return s.pubkey.String()
}

// Sign publishes unsignedTx as a SigningRequest and waits for Complete.
func (s *ClientSigner) Sign(ctx context.Context, unsignedTx []byte) ([]byte, error) {
	tx, err := ParseTransaction(unsignedTx)
	if err != nil {
		return nil, fmt.Errorf("crypto: client sign: %w: %w", domain.ErrSigningFailed, err)
	}
	if _, err := signerIndex(tx, s.pubkey); err != nil {
		return nil, fmt.Errorf("crypto: client sign: %w: %w", domain.ErrSigningFailed, err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("crypto: client sign: %w: %w", domain.ErrSigningFailed, err)
	}

	now := time.Now().UTC()
	p := &pendingSign{
		req: SigningRequest{
			ID:          uuid.NewString(),
			PublicKey:   s.pubkey.String(),
			Transaction: base64.StdEncoding.EncodeToString(unsignedTx),
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.timeout),
		},
		message: msg,
		result:  make(chan []byte, 1),
	}

	s.mu.Lock()
	s.pending[p.req.ID] = p
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, p.req.ID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case signed := <-p.result:
		return signed, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("crypto: client sign %s: %w: %w", p.req.ID, domain.ErrSigningFailed, ctx.Err())
	}
}

// Pending lists outstanding signing requests, oldest first.
func (s *ClientSigner) Pending() []SigningRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SigningRequest, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Complete delivers the client's signed transaction for request id. The
// message must be unchanged and carry a valid signature from the wallet.
func (s *ClientSigner) Complete(id string, signedTx []byte) error {
	s.mu.Lock()
	p, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("crypto: signing request %s: %w", id, domain.ErrNotFound)
	}

	tx, err := ParseTransaction(signedTx)
	if err != nil {
		return fmt.Errorf("crypto: signing request %s: %w: %w", id, domain.ErrInvalidArgument, err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("crypto: signing request %s: %w: %w", id, domain.ErrInvalidArgument, err)
	}
	if !bytes.Equal(msg, p.message) {
		return fmt.Errorf("crypto: signing request %s: %w: transaction message was modified", id, domain.ErrInvalidArgument)
	}
	idx, err := signerIndex(tx, s.pubkey)
	if err != nil {
		return fmt.Errorf("crypto: signing request %s: %w: %w", id, domain.ErrInvalidArgument, err)
	}
	if !tx.Signatures[idx].Verify(s.pubkey, msg) {
		return fmt.Errorf("crypto: signing request %s: %w: bad signature", id, domain.ErrInvalidArgument)
	}

	select {
	case p.result <- signedTx:
		return nil
	default:
		return fmt.Errorf("crypto: signing request %s: %w", id, domain.ErrAlreadyExists)
	}
}
