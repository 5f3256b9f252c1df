package main

import "github.com/qrave1/TalkRooms/cmd"

func main() {
	cmd.Execute()
}
