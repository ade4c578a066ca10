package main

import (
	"os"

	"github.com/Iron-Ham/worklog/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
