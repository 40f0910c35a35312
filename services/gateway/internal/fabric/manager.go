package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chainproof/services/gateway/internal/config"
)

var (
	ErrUnknownOrg      = errors.New("unknown organization")
	ErrUnknownContract = errors.New("contract not found")
	ErrNotConnected    = errors.New("fabric gateway not connected")
)

// Contract keys used by callers, mapped to the chaincode's contract names.
const (
	Whistleblower = "whistleblower"
	Verifier      = "verifier"
	Legal         = "legal"
	Query         = "query"
)

var contractNames = map[string]string{
	Whistleblower: "WhistleblowerContract",
	Verifier:      "VerifierContract",
	Legal:         "LegalContract",
	Query:         "QueryContract",
}

// Invoker runs named transactions on one chaincode contract.
type Invoker interface {
	Submit(ctx context.Context, fn string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error)
}

// Session is an open connection acting as one org's admin identity.
type Session interface {
	Contract(name string) Invoker
	Close() error
}

// Dialer opens sessions. The production implementation is GatewayDialer.
type Dialer interface {
	Dial(ctx context.Context, org string, profile config.OrgProfile) (Session, error)
}

// contractOrgs pins each contract to the org its chaincode methods require.
// Query is open to every org and runs as the current org.
var contractOrgs = map[string]string{
	Whistleblower: config.WhistleblowersOrg,
	Verifier:      config.VerifierOrg,
	Legal:         config.LegalOrg,
}

type orgSession struct {
	session   Session
	contracts map[string]Invoker
}

// Manager keeps one session per org, dialed on first use. The current org
// only selects the identity for query calls and what /org reports.
type Manager struct {
	cfg    *config.Config
	dialer Dialer
	logger *zap.Logger

	mu       sync.Mutex
	org      string
	sessions map[string]*orgSession
	closed   bool
}

func NewManager(cfg *config.Config, dialer Dialer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, dialer: dialer, logger: logger, org: cfg.DefaultOrg, sessions: map[string]*orgSession{}}
}

// Connect makes org the current org, dialing it if needed. On failure the
// previous org stays current.
func (m *Manager) Connect(ctx context.Context, org string) error {
	if _, err := m.orgSession(ctx, org); err != nil {
		return err
	}
	m.mu.Lock()
	m.org = org
	m.mu.Unlock()
	return nil
}

func (m *Manager) SwitchOrg(ctx context.Context, org string) error {
	return m.Connect(ctx, org)
}

func (m *Manager) CurrentOrg() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.org
}

func (m *Manager) Channel() string   { return m.cfg.Channel }
func (m *Manager) Chaincode() string { return m.cfg.Chaincode }

func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*orgSession{}
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for org, s := range sessions {
		if err := s.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s session: %w", org, err))
		}
	}
	if len(sessions) > 0 {
		m.logger.Info("fabric gateway connections closed", zap.Int("sessions", len(sessions)))
	}
	return errors.Join(errs...)
}

func (m *Manager) orgSession(ctx context.Context, org string) (*orgSession, error) {
	profile, ok := m.cfg.Orgs[org]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrg, org)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	if s, ok := m.sessions[org]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	m.logger.Info("connecting to fabric", zap.String("org", org), zap.String("msp_id", profile.MSPID), zap.String("peer", profile.PeerEndpoint))
	session, err := m.dialer.Dial(ctx, org, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to fabric as %s: %w", org, err)
	}
	s := &orgSession{session: session, contracts: make(map[string]Invoker, len(contractNames))}
	for key, name := range contractNames {
		s.contracts[key] = session.Contract(name)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = session.Close()
		return nil, ErrNotConnected
	}
	if existing, ok := m.sessions[org]; ok {
		m.mu.Unlock()
		_ = session.Close()
		return existing, nil
	}
	m.sessions[org] = s
	m.mu.Unlock()
	m.logger.Info("connected to fabric", zap.String("org", org))
	return s, nil
}

func (m *Manager) contract(ctx context.Context, key string) (Invoker, error) {
	if _, ok := contractNames[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, key)
	}
	org, pinned := contractOrgs[key]
	if !pinned {
		org = m.CurrentOrg()
	}
	s, err := m.orgSession(ctx, org)
	if err != nil {
		return nil, err
	}
	return s.contracts[key], nil
}

// Submit endorses and commits fn. An empty result returns nil.
func (m *Manager) Submit(ctx context.Context, contract, fn string, args ...string) (json.RawMessage, error) {
	c, err := m.contract(ctx, contract)
	if err != nil {
		return nil, err
	}
	m.logger.Info("submitting transaction", zap.String("contract", contract), zap.String("fn", fn), zap.Int("args", len(args)))
	out, err := c.Submit(ctx, fn, args...)
	if err != nil {
		return nil, wrapError(contract+":"+fn, err)
	}
	return result(out)
}

// Evaluate queries fn on a single peer without committing.
func (m *Manager) Evaluate(ctx context.Context, contract, fn string, args ...string) (json.RawMessage, error) {
	c, err := m.contract(ctx, contract)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("evaluating transaction", zap.String("contract", contract), zap.String("fn", fn), zap.Int("args", len(args)))
	out, err := c.Evaluate(ctx, fn, args...)
	if err != nil {
		return nil, wrapError(contract+":"+fn, err)
	}
	return result(out)
}

func result(out []byte) (json.RawMessage, error) {
	if len(out) == 0 {
		return nil, nil
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("chaincode returned non-JSON payload (%d bytes)", len(out))
	}
	return json.RawMessage(out), nil
}
