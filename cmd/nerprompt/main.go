package main

import "github.com/kailas-cloud/nerprompt/internal/cli"

func main() {
	cli.Execute()
}
