package main

import "github.com/jrsteele09/go-portal-session/internal/cli"

func main() {
	cli.Execute()
}
