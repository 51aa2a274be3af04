package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisConnects(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()

	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("REDIS_TLS", "")
	t.Setenv("REDIS_REQUIRE_TLS", "")
	t.Setenv("REDIS_DB", "0")

	client, err := NewRedis(context.Background())
	if err != nil {
		t.Fatalf("expected redis connection, got %v", err)
	}
	defer client.Close()
}

func TestNewRedisDialFailure(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	t.Setenv("REDIS_TLS", "")
	t.Setenv("REDIS_REQUIRE_TLS", "")

	if _, err := NewRedis(context.Background()); err == nil {
		t.Fatal("expected dial failure")
	}
}

func TestNewRedisRequireTLSWithoutTLS(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("REDIS_TLS", "")
	t.Setenv("REDIS_REQUIRE_TLS", "true")

	if _, err := NewRedis(context.Background()); err == nil {
		t.Fatal("expected error when TLS is required but disabled")
	}
}

func TestLoadRedisTLSConfigInsecureGuard(t *testing.T) {
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REDIS_TLS_INSECURE", "true")
	t.Setenv("REDIS_ALLOW_INSECURE_TLS", "")
	t.Setenv("REDIS_TLS_SERVER_NAME", "")
	t.Setenv("REDIS_TLS_CA_CERT_FILE", "")
	t.Setenv("REDIS_TLS_CERT_FILE", "")
	t.Setenv("REDIS_TLS_KEY_FILE", "")

	if _, err := loadRedisTLSConfigFromEnv(); err == nil {
		t.Fatal("expected insecure TLS to require explicit allow flag")
	}

	t.Setenv("REDIS_ALLOW_INSECURE_TLS", "true")
	cfg, err := loadRedisTLSConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil || !cfg.InsecureSkipVerify {
		t.Fatal("expected insecure TLS config")
	}
}

func TestLoadRedisTLSConfigMTLSRequiresBothFiles(t *testing.T) {
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REDIS_TLS_INSECURE", "")
	t.Setenv("REDIS_TLS_CA_CERT_FILE", "")
	t.Setenv("REDIS_TLS_CERT_FILE", "/tmp/only-cert.pem")
	t.Setenv("REDIS_TLS_KEY_FILE", "")

	if _, err := loadRedisTLSConfigFromEnv(); err == nil {
		t.Fatal("expected error when key file is missing")
	}
}
