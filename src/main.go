package main

import "github.com/leeeeey/TaskCenter/src/cmd"

func main() {
	cmd.Execute()
}
