package fabric

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"chainproof/services/gateway/internal/config"
)

// GatewayDialer connects to a Fabric peer's gateway service with an org
// admin's X.509 identity read from MSP files.
type GatewayDialer struct {
	Channel   string
	Chaincode string

	EvaluateTimeout     time.Duration
	EndorseTimeout      time.Duration
	SubmitTimeout       time.Duration
	CommitStatusTimeout time.Duration
}

func NewGatewayDialer(cfg *config.Config) *GatewayDialer {
	return &GatewayDialer{
		Channel:             cfg.Channel,
		Chaincode:           cfg.Chaincode,
		EvaluateTimeout:     5 * time.Second,
		EndorseTimeout:      15 * time.Second,
		SubmitTimeout:       5 * time.Second,
		CommitStatusTimeout: time.Minute,
	}
}

func (d *GatewayDialer) Dial(ctx context.Context, org string, p config.OrgProfile) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := loadIdentity(p)
	if err != nil {
		return nil, err
	}
	sign, err := loadSigner(p)
	if err != nil {
		return nil, err
	}
	creds, err := transportCredentials(p)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(p.PeerEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to %s: %w", p.PeerEndpoint, err)
	}
	gw, err := client.Connect(id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(d.EvaluateTimeout),
		client.WithEndorseTimeout(d.EndorseTimeout),
		client.WithSubmitTimeout(d.SubmitTimeout),
		client.WithCommitStatusTimeout(d.CommitStatusTimeout),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect gateway for %s: %w", org, err)
	}
	return &gatewaySession{
		conn:      conn,
		gw:        gw,
		network:   gw.GetNetwork(d.Channel),
		chaincode: d.Chaincode,
	}, nil
}

func loadIdentity(p config.OrgProfile) (*identity.X509Identity, error) {
	pem, err := os.ReadFile(p.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	cert, err := identity.CertificateFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate %s: %w", p.CertPath, err)
	}
	return identity.NewX509Identity(p.MSPID, cert)
}

func loadSigner(p config.OrgProfile) (identity.Sign, error) {
	pem, err := os.ReadFile(p.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	key, err := identity.PrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", p.KeyPath, err)
	}
	return identity.NewPrivateKeySign(key)
}

// transportCredentials is plaintext unless a TLS CA cert is configured,
// which is how Microfab peers are exposed.
func transportCredentials(p config.OrgProfile) (credentials.TransportCredentials, error) {
	if p.TLSCertPath == "" {
		return insecure.NewCredentials(), nil
	}
	pem, err := os.ReadFile(p.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS certificate: %w", err)
	}
	cert, err := identity.CertificateFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TLS certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)

	serverName := p.GatewayPeer
	if serverName == "" {
		host, _, err := net.SplitHostPort(p.PeerEndpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid peer endpoint %q: %w", p.PeerEndpoint, err)
		}
		serverName = host
	}
	return credentials.NewClientTLSFromCert(pool, serverName), nil
}

type gatewaySession struct {
	conn      *grpc.ClientConn
	gw        *client.Gateway
	network   *client.Network
	chaincode string
}

func (s *gatewaySession) Contract(name string) Invoker {
	return gatewayContract{c: s.network.GetContractWithName(s.chaincode, name)}
}

func (s *gatewaySession) Close() error {
	return errors.Join(s.gw.Close(), s.conn.Close())
}

type gatewayContract struct {
	c *client.Contract
}

func (g gatewayContract) Submit(ctx context.Context, fn string, args ...string) ([]byte, error) {
	return g.c.SubmitWithContext(ctx, fn, client.WithArguments(args...))
}

func (g gatewayContract) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	return g.c.EvaluateWithContext(ctx, fn, client.WithArguments(args...))
}
