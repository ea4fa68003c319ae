package main

import "github.com/cameronsjo/berth/internal/cmd"

func main() {
	cmd.Execute()
}
