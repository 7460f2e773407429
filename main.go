package main

import (
	"github.com/cong-or/hud/pkg/cmd"
)

func main() {
	cmd.Execute()
}
