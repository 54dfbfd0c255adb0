package connection

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// StreamURL builds the iKommunicate delta stream URL, subscribed to all
// paths.
func StreamURL(ipaddress string, port int) string {
	return "ws://" + ipaddress + ":" + strconv.Itoa(port) + "/signalk/v1/stream?subscribe=all"
}

// checkURL rejects URLs a socket cannot be created for. This is the
// synchronous failure path; network errors surface later as error + close.
func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return errors.New("invalid url: missing host")
	}
	return nil
}
