// Command token mints a development access token for the custodia API.
//
//	token -name alice
//	token -address <ADDRESS> -ttl 1h
//
// Signing key, issuer and audience come from the same environment variables
// the server reads.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "custodia/internal/jwt_token"
	"custodia/internal/platform/config"
	id "custodia/pkg/domain"
)

func main() {
	name := flag.String("name", "", "dev identity name; the address is derived as in CUSTODIA_GENESIS @name")
	address := flag.String("address", "", "explicit caller address")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*name, *address, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(name, address string, ttl time.Duration) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	var addr id.Address
	switch {
	case name != "" && address != "":
		return fmt.Errorf("use either -name or -address")
	case name != "":
		addr = config.DevAddress(name)
	case address != "":
		addr, err = id.ParseAddress(address)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of -name or -address is required")
	}

	token, err := jwttoken.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience).Issue(addr, ttl)
	if err != nil {
		return err
	}
	fmt.Printf("address: %s\ntoken:   %s\n", addr, token)
	return nil
}
