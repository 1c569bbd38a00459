package main

import (
	unit "github.com/ethereum-optimism/infra/op-unit"
)

func main() {
	unit.Main(suites()...)
}
