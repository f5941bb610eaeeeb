package main

import (
	"flag"
	"fmt"
	"time"

	"campusgate/internal/auth"
	"campusgate/internal/config"
	"campusgate/internal/logging"
)

// admintoken prints a bearer token for the /v1 sync API.
func main() {
	subject := flag.String("sub", "ops", "token subject")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	token, exp, err := auth.Issue(*subject, auth.RoleAdmin, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		logging.Fatal().Err(err).Msg("issue token failed")
	}
	logging.Info().Str("sub", *subject).Time("expires_at", exp).Msg("token issued")
	fmt.Println(token)
}
