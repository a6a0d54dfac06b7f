package main

import (
	"github.com/guotingchao/DeltaTransactionSystem/internal/cli"
)

func main() {
	cli.Execute()
}
