package main

import (
	"github.com/luma/evnsq/cmd"
)

func main() {
	cmd.Execute()
}
