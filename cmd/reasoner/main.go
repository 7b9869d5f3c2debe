package main

import (
	"fmt"
	"os"

	reasonerrors "reasoner/internal/errors"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		msg := reasonerrors.UserMessage(err)
		fmt.Fprintln(os.Stderr, red("error: "+msg))
		if detail := err.Error(); detail != msg {
			fmt.Fprintln(os.Stderr, gray("  "+detail))
		}
		os.Exit(1)
	}
}
