package main

import "github.com/devsys-hq/apiserver/cmd"

func main() {
	cmd.Execute()
}
