package main

import "github.com/nguyentranbao-ct/campaign-chat/cmd"

func main() {
	cmd.Execute()
}
