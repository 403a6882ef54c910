package main

import "github.com/fanvault/tokend/internal/cli"

func main() {
	cli.Execute()
}
