package internal

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/dynaform"
	"go.uber.org/zap"
)

// tokenSource returns the password for a new connection.
type tokenSource func(ctx context.Context) (string, error)

// ConnectionString renders cfg as a postgres:// URL usable by both pgx and lib/pq.
func ConnectionString(cfg dynaform.DatabaseConfig, password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if password != "" {
		u.User = url.UserPassword(cfg.Username, password)
	} else if cfg.Username != "" {
		u.User = url.User(cfg.Username)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// iamTokenSource generates short-lived DSQL auth tokens with the default AWS credential chain.
func iamTokenSource(ctx context.Context, cfg dynaform.DatabaseConfig) (tokenSource, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return func(ctx context.Context) (string, error) {
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
		if err != nil {
			return "", fmt.Errorf("generate IAM auth token: %w", err)
		}
		return token, nil
	}, nil
}

func newPoolConfig(cfg dynaform.DatabaseConfig, tokens tokenSource) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnectionString(cfg, cfg.Password))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(min(cfg.MaxIdleConns, cfg.MaxConnections))
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.Timeout

	if tokens != nil {
		// tokens expire, so every new connection gets a fresh one
		poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
			token, err := tokens(ctx)
			if err != nil {
				return err
			}
			cc.Password = token
			return nil
		}
	}
	return poolConfig, nil
}

// NewPostgresPool opens and pings a pgx pool for cfg. With UseIAMAuth the
// configured password is replaced by an IAM token per connection.
func NewPostgresPool(ctx context.Context, cfg dynaform.DatabaseConfig) (*pgxpool.Pool, error) {
	if err := ValidatePostgresConfig(cfg); err != nil {
		return nil, err
	}

	var tokens tokenSource
	if cfg.UseIAMAuth {
		var err error
		if tokens, err = iamTokenSource(ctx, cfg); err != nil {
			return nil, err
		}
		zap.S().Infow("using IAM auth for postgres", "host", cfg.Host, "region", cfg.Region)
	}

	poolConfig, err := newPoolConfig(cfg, tokens)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// MigrationDSN returns a connection string for the lib/pq migration handle,
// resolving an IAM token when cfg asks for one.
func MigrationDSN(ctx context.Context, cfg dynaform.DatabaseConfig) (string, error) {
	if !cfg.UseIAMAuth {
		return ConnectionString(cfg, cfg.Password), nil
	}
	tokens, err := iamTokenSource(ctx, cfg)
	if err != nil {
		return "", err
	}
	token, err := tokens(ctx)
	if err != nil {
		return "", err
	}
	return ConnectionString(cfg, token), nil
}
