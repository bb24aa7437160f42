// Package main writes the development CA and the backend TLS certificate.
//
//	go run ./tools/certgen -dir certs -hosts localhost,127.0.0.1
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/atinyakov/CourseKeeper/internal/certgen"
)

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func run(args []string) (certgen.Bundle, error) {
	fs := flag.NewFlagSet("certgen", flag.ContinueOnError)
	dir := fs.String("dir", "certs", "output directory")
	hosts := fs.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	if err := fs.Parse(args); err != nil {
		return certgen.Bundle{}, err
	}
	return certgen.WriteDevBundle(*dir, splitHosts(*hosts))
}

func main() {
	b, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Certificates written.\n  server: -tls-cert %s -tls-key %s\n  client: -ca %s\n", b.ServerCert, b.ServerKey, b.CACert)
}
