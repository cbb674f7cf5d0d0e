package main

import "github.com/choreminder/choreminder/adapter/cli"

func main() {
	cli.Execute()
}
