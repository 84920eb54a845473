// A very simple gin HTTP server
// for inspecting the simulation state from a browser
// while a long scenario runs.
// The server sends an empty struct to the datacenter bridge
// and the event loop sends back a rendering of the current
// state at the next scheduling tick.
package gui

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ppmaniotis/cloudsim/internal/broker"
)

var stateRequestStream chan<- struct{}
var stateStream <-chan string
var router *gin.Engine

func registerRoutes() {
	router.POST("/state", func(ctx *gin.Context) {
		stateRequestStream <- struct{}{}
		ctx.JSON(http.StatusOK, gin.H{
			"content": <-stateStream,
		})
	})

	router.GET("/", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "POST /state for the current datacenter state")
	})
}

func SetUp(bridge *broker.Bridge) {
	stateRequestStream = bridge.StateRequestStream
	stateStream = bridge.StateStream

	router = gin.Default()
	router.Use(cors.Default())

	registerRoutes()
}

func Run(port int) {
	router.Run(fmt.Sprintf(":%d", port))
}
