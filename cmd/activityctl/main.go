package main

import (
	"log"

	tool "github.com/sandeepkv93/activity-logging-gateway/internal/tools/activityctl"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
