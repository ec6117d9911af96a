package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/orbitsync/orbitsync/internal/config"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
)

const quicALPN = "orbitsync-quic"

// QUICGateway is the secondary transport: one bidirectional stream per
// session carrying newline-delimited JSON event envelopes. It shares the
// Core with the websocket gateway, so sessions on either transport live in
// the same rooms.
type QUICGateway struct {
	core   *Core
	cfg    config.Server
	logger log.Log

	listener *quic.Listener
	running  int32 // atomic bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewQUICGateway(core *Core, cfg config.Server, logger log.Log) *QUICGateway {
	return &QUICGateway{
		core:   core,
		cfg:    cfg,
		logger: logger.With(log.String("transport", "quic")),
	}
}

// Start begins accepting QUIC connections on the configured address.
func (g *QUICGateway) Start() error {
	if !atomic.CompareAndSwapInt32(&g.running, 0, 1) {
		return ErrAlreadyRunning
	}

	tlsConf, err := g.tlsConfig()
	if err != nil {
		atomic.StoreInt32(&g.running, 0)
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	listener, err := quic.ListenAddr(g.cfg.QUICAddr, tlsConf, &quic.Config{
		MaxIdleTimeout:  2 * time.Minute,
		KeepAlivePeriod: 15 * time.Second,
	})
	if err != nil {
		atomic.StoreInt32(&g.running, 0)
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	g.listener = listener

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.wg.Add(1)
	go g.acceptLoop(ctx)

	g.logger.Info("quic gateway listening", log.String("addr", g.cfg.QUICAddr))
	return nil
}

// Stop closes the listener and waits for connection handlers to finish.
func (g *QUICGateway) Stop() error {
	if !atomic.CompareAndSwapInt32(&g.running, 1, 0) {
		return ErrNotRunning
	}
	g.cancel()
	_ = g.listener.Close()
	g.wg.Wait()
	g.logger.Info("quic gateway stopped")
	return nil
}

func (g *QUICGateway) acceptLoop(ctx context.Context) {
	defer g.wg.Done()
	for {
		conn, err := g.listener.Accept(ctx)
		if err != nil {
			if atomic.LoadInt32(&g.running) == 1 {
				g.logger.Error("accept failed", log.Error(err))
			}
			return
		}
		g.wg.Add(1)
		go g.handleConnection(ctx, conn)
	}
}

func (g *QUICGateway) handleConnection(ctx context.Context, conn *quic.Conn) {
	defer g.wg.Done()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return
	}

	r := newRemote()
	go g.writePump(stream, r)
	g.readPump(stream, r)
	_ = conn.CloseWithError(0, "closed")
}

func (g *QUICGateway) readPump(stream *quic.Stream, r *remote) {
	defer g.core.DropConnection(r)

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 4096), int(g.cfg.MaxMessageSize))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if g.core.HandleRaw(r, line) {
			return
		}
	}
}

func (g *QUICGateway) writePump(stream *quic.Stream, r *remote) {
	for data := range r.send {
		if _, err := stream.Write(append(data, '\n')); err != nil {
			return
		}
	}
	_ = stream.Close()
}

// tlsConfig loads the configured certificate, or self-signs one for
// development when none is configured.
func (g *QUICGateway) tlsConfig() (*tls.Config, error) {
	if g.cfg.CertFile != "" && g.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(g.cfg.CertFile, g.cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{quicALPN},
			MinVersion:   tls.VersionTLS13,
		}, nil
	}
	g.logger.Warn("no certificate configured, generating a self-signed one")
	return generateTLSConfig()
}

// generateTLSConfig builds a self-signed TLS config for development.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"OrbitSync"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:     []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{quicALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
