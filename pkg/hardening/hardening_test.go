package hardening

import "testing"

func TestValidateProduction(t *testing.T) {
	base := Options{
		Service:                "zero-trust-gateway",
		Environment:            "production",
		StrictProdSecurity:     "true",
		DatabaseRequireTLS:     "true",
		RedisAddr:              "redis:6379",
		RedisRequireTLS:        "true",
		CORSAllowedOrigins:     "https://console.onevault.example",
		RequiredServiceSecrets: []EnvRequirement{{Name: "ADMIN_API_TOKEN", Value: "secret"}},
	}

	t.Run("pass", func(t *testing.T) {
		if err := ValidateProduction(base); err != nil {
			t.Fatalf("expected pass, got %v", err)
		}
	})

	t.Run("non_prod_skip", func(t *testing.T) {
		o := base
		o.Environment = "development"
		o.DatabaseRequireTLS = "false"
		o.CORSAllowedOrigins = "*"
		if err := ValidateProduction(o); err != nil {
			t.Fatalf("expected skip in non-production, got %v", err)
		}
	})

	t.Run("db_tls_required", func(t *testing.T) {
		o := base
		o.DatabaseRequireTLS = "false"
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected DATABASE_REQUIRE_TLS enforcement error")
		}
	})

	t.Run("redis_tls_required", func(t *testing.T) {
		o := base
		o.RedisRequireTLS = "false"
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected REDIS_REQUIRE_TLS enforcement error")
		}
	})

	t.Run("redis_insecure_forbidden", func(t *testing.T) {
		o := base
		o.RedisTLSInsecure = "true"
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected insecure redis flags error")
		}
	})

	t.Run("no_redis_skips_redis_checks", func(t *testing.T) {
		o := base
		o.RedisAddr = ""
		o.RedisRequireTLS = "false"
		if err := ValidateProduction(o); err != nil {
			t.Fatalf("expected pass without redis, got %v", err)
		}
	})

	t.Run("cors_wildcard_forbidden", func(t *testing.T) {
		o := base
		o.CORSAllowedOrigins = "*"
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected wildcard CORS error")
		}
	})

	t.Run("cors_https_required", func(t *testing.T) {
		o := base
		o.CORSAllowedOrigins = "http://console.onevault.example"
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected https CORS error")
		}
	})

	t.Run("cors_localhost_forbidden", func(t *testing.T) {
		o := base
		o.CORSAllowedOrigins = "https://localhost:3000"
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected localhost CORS error")
		}
	})

	t.Run("cors_empty_forbidden", func(t *testing.T) {
		o := base
		o.CORSAllowedOrigins = " , "
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected empty CORS error")
		}
	})

	t.Run("required_secret", func(t *testing.T) {
		o := base
		o.RequiredServiceSecrets = []EnvRequirement{{Name: "ADMIN_API_TOKEN", Value: ""}}
		if err := ValidateProduction(o); err == nil {
			t.Fatal("expected required secret error")
		}
	})

	t.Run("strict_can_be_disabled", func(t *testing.T) {
		o := base
		o.StrictProdSecurity = "false"
		o.DatabaseRequireTLS = "false"
		o.CORSAllowedOrigins = "*"
		if err := ValidateProduction(o); err != nil {
			t.Fatalf("expected strict disable skip, got %v", err)
		}
	})
}

func TestFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("STRICT_PROD_SECURITY", "true")
	t.Setenv("DATABASE_REQUIRE_TLS", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_REQUIRE_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://console.onevault.example")

	o := FromEnv("zero-trust-gateway")
	if o.Environment != "staging" || o.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected options: %+v", o)
	}
	if err := ValidateProduction(o); err != nil {
		t.Fatalf("expected env-derived options to pass, got %v", err)
	}
}
