package main

import "github.com/MeKo-Tech/geoconnector/internal/cmd"

func main() {
	cmd.Execute()
}
