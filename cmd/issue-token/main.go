package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
	"golang.org/x/term"
)

// issue-token signs a bearer token for local testing and proctor tooling.
//
//	issue-token -type student -user 42 -class 3
//	issue-token -type admin -user 1 -perms attempts:read,exams:monitor
func main() {
	var (
		tokenType = flag.String("type", "student", "Token type: student or admin")
		userID    = flag.Int("user", 0, "Student or admin id")
		classID   = flag.Int("class", 0, "Class id (student tokens)")
		perms     = flag.String("perms", "", "Comma-separated permissions (admin tokens); \"all\" grants every permission")
		askSecret = flag.Bool("ask-secret", false, "Prompt for the signing secret instead of reading JWT_SECRET")
	)
	flag.Parse()

	cfg := config.Load()

	if *userID <= 0 {
		fmt.Println("Error: -user is required")
		os.Exit(1)
	}

	typ := service.TokenType(*tokenType)
	if typ != service.TokenTypeStudent && typ != service.TokenTypeAdmin {
		fmt.Printf("Error: unknown token type %q\n", *tokenType)
		os.Exit(1)
	}

	if *askSecret {
		fmt.Print("Enter JWT secret: ")
		raw, err := readSecret()
		fmt.Println()
		if err != nil || raw == "" {
			fmt.Println("Error reading secret")
			os.Exit(1)
		}
		cfg.JWTSecret = raw
	}

	var permissions []string
	if typ == service.TokenTypeAdmin {
		var err error
		permissions, err = parsePermissions(*perms)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	token, err := service.NewAuthService(cfg).IssueToken(typ, *userID, *classID, permissions)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// readSecret reads without echo from a terminal, or a line from piped stdin.
func readSecret() (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func parsePermissions(raw string) ([]string, error) {
	if raw == "all" {
		out := make([]string, 0, len(model.AllPermissions))
		for _, p := range model.AllPermissions {
			out = append(out, string(p))
		}
		return out, nil
	}

	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !model.ValidPermission(p) {
			return nil, fmt.Errorf("unknown permission %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}
