package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/flightlabs/aerodb/clientapi"
)

var opts struct {
	Addr        string `long:"addr" env:"AERODB_ADDR" default:"127.0.0.1:9042" description:"client address of a node"`
	Consistency string `long:"consistency" env:"AERODB_CONSISTENCY" default:"quorum" description:"consistency level (one, quorum, all)"`
}

func main() {
	p := flags.NewParser(&opts, flags.Default)

	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			fmt.Println("cli error:", err)
		}

		os.Exit(2)
	}

	client, err := clientapi.Dial(context.Background(), opts.Addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer client.Close()

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("aerodb> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}

			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}

		statement := strings.TrimSpace(line)
		if statement == "" {
			continue
		}

		if strings.EqualFold(statement, "exit") || strings.EqualFold(statement, "quit") {
			return
		}

		resp, err := client.Execute(context.Background(), statement, opts.Consistency)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}

		printResponse(resp)
	}
}

func printResponse(resp *clientapi.QueryResponse) {
	if len(resp.Columns) == 0 {
		fmt.Println("OK")
		return
	}

	names := make([]string, len(resp.Columns))
	for i, col := range resp.Columns {
		names[i] = col.Name
	}

	fmt.Println(strings.Join(names, " | "))

	for _, row := range resp.Rows {
		fmt.Println(strings.Join(row, " | "))
	}

	fmt.Printf("(%d rows)\n", len(resp.Rows))
}
