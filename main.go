package main

import "github.com/FrenchMajesty/turbo-retry/cli"

func main() {
	cli.Execute()
}
