// Command gen-token prints HS256 bearer tokens for a server running with
// AUTH0_TEST_MODE=1. The secret is read from TEST_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/identity"
)

func main() {
	var (
		count  = flag.Int("count", 1, "number of tokens to generate")
		prefix = flag.String("prefix", "user", "prefix for generated principal ids when count > 1")
		start  = flag.Int("start", 1, "starting index for generated principal ids")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
		output = flag.String("output", "", "file to write the tokens to as a JSON array")
	)
	flag.Parse()

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		log.Fatal("TEST_JWT_SECRET must be set")
	}
	if *count < 1 || *start < 1 {
		log.Fatal("count and start must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit principal id cannot be combined with -count")
	}

	tokens := make([]string, *count)
	for i := range tokens {
		sub := *prefix
		switch {
		case len(args) > 0:
			sub = args[0]
		case *count > 1:
			sub = fmt.Sprintf("%s-%d", *prefix, *start+i)
		}
		tok, err := identity.SignTestToken([]byte(secret), sub, *ttl)
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		tokens[i] = tok
	}

	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
