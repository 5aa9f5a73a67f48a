package main

import (
	"github.com/rudransh-shrivastava/pairchat/internal/cli"
)

func main() {
	cli.Execute()
}
