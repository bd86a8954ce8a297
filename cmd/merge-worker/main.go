package main

import (
	"os"

	"github.com/notecore/notecore/mergeworker"
)

func main() {
	if err := mergeworker.Run(); err != nil {
		os.Exit(1)
	}
}
