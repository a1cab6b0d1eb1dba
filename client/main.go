package main

import (
	"bufio"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Version int             `json:"v"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// send wraps a payload in the versioned envelope and ships it as a text
// frame.
func send(c *websocket.Conn, kind string, payload interface{}) error {
	env := envelope{Version: 1, Type: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	return c.WriteJSON(env)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var env envelope
			if err := c.ReadJSON(&env); err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- RECV %s: %s", env.Type, string(env.Data))
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = send(c, "heartbeat", nil)
			}
		}
	}()

	log.Println("Commands: register <user> <email> <pass> | login <user> <pass> | create <name> <capacity>")
	log.Println("          join <room> | list | ready | song <ref> | start | hit <circle> <tier> | finish | chat <text>")

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(strings.TrimSpace(text))
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "register":
				if len(fields) == 4 {
					err = send(c, "register", map[string]string{
						"username": fields[1], "email": fields[2], "password": fields[3],
					})
				}
			case "login":
				if len(fields) == 3 {
					err = send(c, "auth", map[string]string{
						"username": fields[1], "password": fields[2],
					})
				}
			case "create":
				if len(fields) == 3 {
					capacity, _ := strconv.Atoi(fields[2])
					err = send(c, "create_room", map[string]interface{}{
						"name": fields[1], "capacity": capacity,
					})
				}
			case "join":
				if len(fields) == 2 {
					err = send(c, "join_room", map[string]string{"room_id": fields[1]})
				}
			case "list":
				err = send(c, "list_rooms", nil)
			case "ready":
				err = send(c, "set_ready", map[string]bool{"ready": true})
			case "song":
				if len(fields) == 2 {
					err = send(c, "select_song", map[string]string{"song": fields[1]})
				}
			case "start":
				err = send(c, "start_match", nil)
			case "hit":
				if len(fields) == 3 {
					circle, _ := strconv.Atoi(fields[1])
					tier, _ := strconv.Atoi(fields[2])
					err = send(c, "hit_event", map[string]interface{}{
						"circle_id":        circle,
						"reported_score":   tier,
						"client_timestamp": float64(time.Now().UnixMilli()),
					})
				}
			case "finish":
				err = send(c, "game_finished", map[string]interface{}{
					"client_timestamp": float64(time.Now().UnixMilli()),
				})
			case "chat":
				if len(fields) >= 2 {
					err = send(c, "chat", map[string]string{
						"body": strings.Join(fields[1:], " "),
					})
				}
			default:
				log.Printf("unknown command %q", fields[0])
			}

			if err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
