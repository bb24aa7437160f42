package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// prompter reads answers from the shell's input stream.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// line prints label and returns the trimmed answer. ok is false at end of input.
func (p *prompter) line(label string) (string, bool) {
	fmt.Fprint(p.out, label)
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

// confirm asks a yes/no question. Anything but y or yes is no.
func (p *prompter) confirm(question string) bool {
	answer, ok := p.line(question + " [y/N]: ")
	if !ok {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// credentials asks for an email and a password.
func (p *prompter) credentials() (email, password string, ok bool) {
	email, ok = p.line("Email: ")
	if !ok || email == "" {
		return "", "", false
	}
	password, ok = p.line("Password: ")
	if !ok || password == "" {
		return "", "", false
	}
	return email, password, true
}
