package main

import (
	"os"

	"github.com/notecore/notecore/noteservice"
)

func main() {
	if err := noteservice.Run(); err != nil {
		os.Exit(1)
	}
}
