package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bastago/basta/internal/logger"
)

// listenForKeyboard listens for single-key shortcuts on stdin. Skipped
// silently when stdin is not a terminal (containers, service managers).
func listenForKeyboard(appLog *logger.SlogLogger) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			continue
		}

		switch strings.ToLower(string(buf[0])) {
		case "h":
			if appLog.IsHTTPLoggingEnabled() {
				appLog.DisableHTTPLogging()
				fmt.Printf("%sHTTP logging disabled%s\r\n", yellow, reset)
			} else {
				appLog.EnableHTTPLogging()
				fmt.Printf("%sHTTP logging enabled%s\r\n", green, reset)
			}
		case "l":
			cycleLogLevel(appLog)
		case "q", "\x03": // q or Ctrl+C
			fmt.Printf("%sShutting down server...%s\r\n", yellow, reset)
			term.Restore(fd, oldState)
			os.Exit(0)
		case "?":
			printKeyboardHelp()
		}
	}
}
