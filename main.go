package main

import "github.com/theirongolddev/finsync/cmd"

func main() {
	cmd.Execute()
}
