package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// parseEnv loads the dotenv file (-env-file, or ./.env when present) into
// the process environment and overlays config with the recognised variables.
// Variables already set in the environment win over the file.
func parseEnv(config *Config) {
	loadDotenv(flagx.EnvFileFlag())
	applyEnv(config, os.LookupEnv)
}

func loadDotenv(path string) {
	if path == "" {
		if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		panic(err)
	}
}

// applyEnv reads settings through lookup. JWT_SECRET takes precedence over
// SECRET_KEY for the signing key. Unparsable numbers and durations panic.
func applyEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("GRPC_ADDR", &config.GRPCAddr)
	str("DATABASE_URL", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	str("JWT_SECRET", &config.SecretKey)
	str("LOG_FORMAT", &config.LogFormat)
	str("LOG_LEVEL", &config.LogLevel)

	dur("ACCESS_TOKEN_LIFETIME", &config.AccessTokenValidityDuration)
	dur("REFRESH_TOKEN_LIFETIME", &config.RefreshTokenValidityDuration)
	dur("REVOCATION_PRUNE_INTERVAL", &config.PruneInterval)

	if v, ok := lookup("BCRYPT_COST"); ok && v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.PasswordHashCost = cost
	}

	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		config.AllowedOrigins = splitList(v)
	}
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
