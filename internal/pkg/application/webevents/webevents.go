package webevents

import (
	"encoding/json"
	"net/url"

	gosse "github.com/alexandrevicenzi/go-sse"
)

const UsersChannel string = "/events/users"

//go:generate moq -rm -out webevents_mock.go . WebEvents

type WebEvents interface {
	Server() *gosse.Server
	Shutdown()
	PublishUsersChanged(data any) error
	PublishHistoryChanged(nickname string, data any) error
}

type webEvents struct {
	s *gosse.Server
}

func New() WebEvents {
	return &webEvents{
		s: gosse.NewServer(&gosse.Options{}),
	}
}

// HistoryChannel returns the per user channel that history updates
// for the given nickname are published on.
func HistoryChannel(nickname string) string {
	return "/events/history/" + url.PathEscape(nickname)
}

func (we *webEvents) Server() *gosse.Server {
	return we.s
}

func (we *webEvents) Shutdown() {
	we.s.Shutdown()
}

func (we *webEvents) PublishUsersChanged(data any) error {
	return we.publish(UsersChannel, "update_users", data)
}

func (we *webEvents) PublishHistoryChanged(nickname string, data any) error {
	return we.publish(HistoryChannel(nickname), "update_history", data)
}

func (we *webEvents) publish(channel, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	we.s.SendMessage(channel, gosse.NewMessage("", string(b), event))

	return nil
}
