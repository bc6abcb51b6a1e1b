package main

import "shipping-bot/internal/cli"

func main() {
	cli.Execute()
}
