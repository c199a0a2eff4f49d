package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tanwarat/voiceroom/config"
	"github.com/tanwarat/voiceroom/globals"
	"github.com/tanwarat/voiceroom/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	hub := ws.NewHub(globalConfig)
	go hub.Run()

	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocketHandler(hub, w, r)
	}).Methods(http.MethodGet)
	http.Handle("/", router)

	globals.AppLogger.Info("listening", "addr", globalConfig.ListenAddr)
	err = http.ListenAndServe(globalConfig.ListenAddr, nil)
	globals.AppLogger.Error("stopped listening", "error", err)
}

// Handle incoming websockets. Everything after the upgrade happens on the
// connection's own pump goroutines.
func websocketHandler(hub *ws.Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	client := ws.NewClient(hub, conn)
	globals.AppLogger.Debug("connection established", "connection", client.Id, "remote", conn.RemoteAddr())
	hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
