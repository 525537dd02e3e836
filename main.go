package main

import (
	"github.com/gin-gonic/gin"

	"furima/api"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}
	server, err := api.NewServer(args.ServerConfig)
	if err != nil {
		panic(err)
	}
	defer server.Close()

	router := gin.Default()
	server.RegisterHandlers(router)
	if err := router.Run(args.ServerURL); err != nil {
		panic(err)
	}
}
