package main

import (
	"fmt"
	"os"

	"github.com/turtacn/Vigil/internal/cli"
	"github.com/turtacn/Vigil/pkg/exitcodes"
	"github.com/turtacn/Vigil/pkg/logger"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			if logger.Log != nil {
				logger.Log.Error("Panic recovered", "panic", r)
			} else {
				fmt.Fprintf(os.Stderr, "Panic recovered: %v\n", r)
			}
			os.Exit(exitcodes.Crash)
		}
	}()

	cli.Execute()
}

// Personal.AI order the ending
