package main

import "github.com/huanfeng/apkstore-cli/cmd"

func main() {
	cmd.Execute()
}
