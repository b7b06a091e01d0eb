package main

import "github.com/mvp-joe/typeindex/internal/cli"

func main() {
	cli.Execute()
}
