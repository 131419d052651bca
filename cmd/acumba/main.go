package main

import "github.com/vietddude/acumba/internal/cli"

func main() {
	cli.Execute()
}
