package subscribers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestConfig(t *testing.T) {
	is := is.New(t)
	config := strings.NewReader(`
notifications:
  - id: registrations
    name: User Registrations
    type: presence.userRegistered
    subscribers:
    - endpoint: http://api-notification:8990
`)
	cfg, err := LoadConfiguration(config)

	is.NoErr(err)
	is.Equal(len(cfg.Notifications), 1)
	is.Equal(cfg.Notifications[0].ID, "registrations")
	is.Equal(cfg.Notifications[0].Subscribers[0].Endpoint, "http://api-notification:8990")
}

func TestSendIsANoOpWithoutSubscribers(t *testing.T) {
	is := is.New(t)

	sender := New(nil)
	err := sender.Send(context.Background(), "presence.userRegistered", "alice", map[string]string{"nickName": "alice"})
	is.NoErr(err)
}

func TestSendDeliversEventToSubscriber(t *testing.T) {
	is := is.New(t)

	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Notifications: []Notification{
			{
				Type:        "presence.userRegistered",
				Subscribers: []SubscriberConfig{{Endpoint: server.URL}},
			},
		},
	}

	sender := New(cfg)
	err := sender.Send(context.Background(), "presence.userRegistered", "alice", map[string]string{"nickName": "alice"})
	is.NoErr(err)

	body := <-received

	payload := map[string]string{}
	is.NoErr(json.Unmarshal(body, &payload))
	is.Equal("alice", payload["nickName"])
}
