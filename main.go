package main

import "github.com/redentordev/laravel-vps/cmd"

func main() {
	cmd.Execute()
}
