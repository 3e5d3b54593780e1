// Command chatbot is a minimal line client for poking at a running server:
// it joins under -name, forwards stdin lines and prints whatever arrives.
package main

import (
	"bufio"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6969", "chat server address")
	name := flag.String("name", "TESTBOT", "display name to join with")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Error("dial failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, *name+"\n"); err != nil {
		logger.Error("send name failed", "error", err)
		os.Exit(1)
	}

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if _, err := io.WriteString(conn, sc.Text()+"\n"); err != nil {
				return
			}
		}
	}()

	if _, err := io.Copy(os.Stdout, conn); err != nil {
		logger.Error("connection lost", "error", err)
	}
}
