package main

import "github.com/vietddude/pdfmend/internal/cli"

func main() {
	cli.Execute()
}
