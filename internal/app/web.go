package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rocket_attitude/internal/config"
	"github.com/relabs-tech/rocket_attitude/internal/fusion"
)

// RunWeb serves a dashboard for a fusion service running elsewhere: it
// follows the fused pose topic over MQTT instead of fusing itself.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	addr := cfg.WebAddr()
	if addr == "" {
		return errors.New("WEB_SERVER_PORT is 0, nothing to serve")
	}

	// 1) Connect to MQTT broker
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	view := newRemoteView(NewHub())
	defer view.hub.Close()

	// 2) Subscribe to fused pose topic and remember the newest sample
	token := client.Subscribe(cfg.TopicPoseFused, 0, func(_ mqtt.Client, msg mqtt.Message) {
		view.handleMessage(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", cfg.TopicPoseFused)

	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, view.Handler())
}

// remoteView holds the newest fused sample received over MQTT.
type remoteView struct {
	hub *Hub

	mu     sync.RWMutex
	last   fusion.FusedSample
	have   bool
	window []fusion.FusedSample
	limit  int
}

func newRemoteView(hub *Hub) *remoteView {
	return &remoteView{hub: hub, limit: 300}
}

func (v *remoteView) handleMessage(payload []byte) {
	var f fusion.FusedSample
	if err := json.Unmarshal(payload, &f); err != nil {
		log.Printf("MQTT payload unmarshal error: %v", err)
		return
	}

	v.mu.Lock()
	v.last = f
	v.have = true
	v.window = append(v.window, f)
	if len(v.window) > v.limit {
		v.window = append(v.window[:0:0], v.window[len(v.window)-v.limit:]...)
	}
	v.mu.Unlock()

	v.hub.BroadcastRaw(payload)
}

func (v *remoteView) Handler() http.Handler {
	mux := http.NewServeMux()

	// JSON API endpoint: latest fused sample
	mux.HandleFunc("GET /api/orientation", func(w http.ResponseWriter, r *http.Request) {
		v.mu.RLock()
		last, have := v.last, v.have
		v.mu.RUnlock()

		if !have {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, last)
	})

	// JSON API endpoint: recently received samples
	mux.HandleFunc("GET /api/window", func(w http.ResponseWriter, r *http.Request) {
		v.mu.RLock()
		samples := append([]fusion.FusedSample{}, v.window...)
		v.mu.RUnlock()

		writeJSON(w, http.StatusOK, windowResponse{Filter: lastFilter(samples), Samples: samples})
	})

	mux.HandleFunc("GET /ws", v.hub.ServeWS)

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

func lastFilter(samples []fusion.FusedSample) fusion.Kind {
	if len(samples) == 0 {
		return ""
	}
	return samples[len(samples)-1].Filter
}
