package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// NewClient dials Temporal, retrying for up to cfg.DialMaxWait. It returns a nil
// client and nil error when no address is configured.
func NewClient(ctx context.Context, cfg Config, log *logger.Logger) (temporalsdkclient.Client, error) {
	cfg = cfg.withDefaults()
	if !cfg.Enabled() {
		log.Warn("temporal disabled, TEMPORAL_ADDRESS is empty")
		return nil, nil
	}
	opts, err := clientOptions(cfg, log)
	if err != nil {
		return nil, err
	}
	opts.Namespace = cfg.Namespace
	log = log.With("address", cfg.Address, "namespace", cfg.Namespace)

	var c temporalsdkclient.Client
	err = Retry(ctx, log, "temporal dial", cfg.DialMaxWait, nil, func(int) error {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var derr error
		c, derr = temporalsdkclient.DialContext(dialCtx, opts)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.Address, err)
	}
	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(ctx, cfg, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace on a self-hosted cluster when it is
// missing. Hosted namespaces are provisioned outside the app.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	cfg = cfg.withDefaults()
	if !cfg.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// the namespace client sends no namespace header, so it works before the namespace exists
	opts, err := clientOptions(cfg, log)
	if err != nil {
		return err
	}
	ns, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer ns.Close()

	return Retry(ctx, log, "temporal namespace ensure", 10*time.Second, transientRPC, func(int) error {
		_, err := ns.Describe(ctx, cfg.Namespace)
		var missing *serviceerror.NamespaceNotFound
		if !errors.As(err, &missing) {
			return err
		}
		err = ns.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        cfg.Namespace,
			Description:                      "registered by trackflow",
			WorkflowExecutionRetentionPeriod: durationpb.New(cfg.NamespaceRetention),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			log.Info("temporal namespace registered", "namespace", cfg.Namespace, "retention", cfg.NamespaceRetention.String())
			return nil
		}
		return err
	})
}

func clientOptions(cfg Config, log *logger.Logger) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address, Logger: log}
	if !cfg.usesTLS() {
		return opts, nil
	}
	tlsCfg, err := mutualTLS(cfg)
	if err != nil {
		return opts, fmt.Errorf("temporal tls: %w", err)
	}
	opts.ConnectionOptions.TLS = tlsCfg
	return opts, nil
}

func mutualTLS(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, errors.New("TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH must both be set")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, err
	}
	out := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return out, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, err
	}
	out.RootCAs = x509.NewCertPool()
	if !out.RootCAs.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", cfg.ClientCAPath)
	}
	return out, nil
}

// transientRPC reports gRPC failures worth another attempt.
func transientRPC(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}
