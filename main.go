package main

import "github.com/yycnik/json-log-parser/internal/cmd"

func main() {
	cmd.Execute()
}
