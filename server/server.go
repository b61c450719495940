package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/invopop/jsonschema"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize          = 320
	maxStatsDays    = 90
	maxShiftsListed = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, clientDir string) *httprouter.Router {
	router := httprouter.New()

	router.GET("/ws", serveWS(hub))
	router.GET("/api/leaderboard", leaderboardHandler(hub))
	router.GET("/api/stats", statsHandler(hub))
	router.GET("/api/shifts", shiftsHandler(hub))
	router.GET("/api/schema", schemaHandler)
	router.GET("/qr", qrHandler)

	// Serve static files with no-cache so browsers always revalidate
	fs := http.FileServer(http.Dir(clientDir))
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fs.ServeHTTP(w, r)
	})

	return router
}

func serveWS(hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		// A requested name still has to get past claims
		name := ""
		if want := r.URL.Query().Get("name"); want != "" {
			if resolved, _, err := hub.auth.ResolveName(want, "", ip); err == nil {
				name = resolved
			}
		}
		binary := r.URL.Query().Get("bin") == "1"

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip, binary)
		if !hub.Register(client, name) {
			hub.TrackDisconnect(ip)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func leaderboardHandler(hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var boards LeaderboardsMsg
		if !hub.loop.Call(func() { boards = hub.game.Leaderboards() }) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, boards)
	}
}

// StatsResponse is the body of /api/stats
type StatsResponse struct {
	Days      int            `json:"days"`
	Connected int            `json:"connected"`
	Sockets   int            `json:"sockets"`
	Events    map[string]int `json:"events"`
	Daily     []DayCount     `json:"daily"`
}

func statsHandler(hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		days := queryInt(r, "days", 7, 1, maxStatsDays)
		resp := StatsResponse{Days: days, Connected: hub.ClientCount(), Sockets: hub.TotalConns(), Events: map[string]int{}}
		if hub.analytics != nil {
			counts, err := hub.analytics.EventCounts(days)
			if err != nil {
				log.Printf("stats: %v", err)
				http.Error(w, "stats unavailable", http.StatusInternalServerError)
				return
			}
			if counts != nil {
				resp.Events = counts
			}
			resp.Daily, err = hub.analytics.DailyActiveHistory(days)
			if err != nil {
				log.Printf("stats history: %v", err)
			}
		}
		writeJSON(w, resp)
	}
}

func shiftsHandler(hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if hub.db == nil {
			writeJSON(w, []ShiftRow{})
			return
		}
		limit := queryInt(r, "limit", 10, 1, maxShiftsListed)
		shifts, err := hub.db.RecentShifts(limit)
		if err != nil {
			log.Printf("shifts: %v", err)
			http.Error(w, "shifts unavailable", http.StatusInternalServerError)
			return
		}
		if shifts == nil {
			shifts = []ShiftRow{}
		}
		writeJSON(w, shifts)
	}
}

var (
	schemaOnce sync.Once
	schemaBody []byte
)

// MessageSchemas reflects a JSON schema for every message variant, keyed by
// direction and type discriminator
func MessageSchemas() map[string]map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	reflectOne := func(v any, typ string) *jsonschema.Schema {
		s := reflector.Reflect(v)
		s.Title = typ
		return s
	}

	inbound := make(map[string]*jsonschema.Schema, len(InboundMessages))
	for typ, msg := range InboundMessages {
		var v any = msg
		if typ == MsgRequestPartner {
			v = RequestPartnerWire{}
		}
		inbound[typ] = reflectOne(v, typ)
	}

	outbound := make(map[string]*jsonschema.Schema, len(OutboundMessages))
	for _, msg := range OutboundMessages {
		outbound[msg.MessageType()] = reflectOne(msg, msg.MessageType())
	}

	return map[string]map[string]*jsonschema.Schema{
		"inbound":  inbound,
		"outbound": outbound,
	}
}

func schemaHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	schemaOnce.Do(func() {
		var err error
		schemaBody, err = json.MarshalIndent(MessageSchemas(), "", "  ")
		if err != nil {
			log.Printf("schema: %v", err)
		}
	})
	if schemaBody == nil {
		http.Error(w, "schema unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.Write(schemaBody)
}

// qrHandler renders the join URL as a PNG. Defaults to this server's root.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	target := r.URL.Query().Get("url")
	if target == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		target = scheme + "://" + r.Host + "/"
	}

	png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return int(Clamp(float64(n), float64(min), float64(max)))
}
