package main

import "github.com/RubachokBoss/speech-sdk/cmd"

func main() {
	cmd.Execute()
}
