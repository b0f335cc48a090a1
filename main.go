package main

import (
	"github.com/naxcloud/naxcloud/internal/api"
	"github.com/naxcloud/naxcloud/internal/app"
	"github.com/naxcloud/naxcloud/internal/camera"
	"github.com/naxcloud/naxcloud/internal/sessions"
	"github.com/naxcloud/naxcloud/pkg/shell"
)

func main() {
	app.Init() // init config and logs

	api.Init()      // init HTTP API server
	sessions.Init() // init session registry and janitor
	camera.Init()   // init TCP and UDP protocol listeners

	shell.RunUntilSignal()
}
