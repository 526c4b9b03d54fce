package main

import "github/chapool/vault-relayer/cmd"

func main() {
	cmd.Execute()
}
