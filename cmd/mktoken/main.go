// mktoken mints a bearer token for a member using the server's signing key.
// Run it on the host next to the key file, then hand the token to the member.
package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/planwerk/planwerk/engine"
)

func main() {
	keyFile := flag.String("key", "auth.pem", "path to the signing key")
	memberID := flag.Int64("member", 0, "member id to mint the token for")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	if *memberID == 0 {
		panic("the -member flag is required")
	}

	issuer := engine.NewTokenIssuer(*keyFile)
	now := time.Now()
	token, err := issuer.Sign(&jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(*memberID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(token)
}
