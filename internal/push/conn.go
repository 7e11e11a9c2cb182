package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

type negotiateResponse struct {
	ConnectionID     string `json:"connectionId"`
	ConnectionToken  string `json:"connectionToken"`
	NegotiateVersion int    `json:"negotiateVersion"`
	URL              string `json:"url"`
	AccessToken      string `json:"accessToken"`
	Error            string `json:"error"`
}

// negotiate asks the hub for a connection token, following at most a few
// redirects to another hub URL.
func negotiate(ctx context.Context, hc *http.Client, hubURL, token string) (wsURL, accessToken string, err error) {
	const maxRedirects = 5
	for range maxRedirects {
		endpoint := strings.TrimRight(hubURL, "/") + "/negotiate?negotiateVersion=1"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return "", "", fmt.Errorf("creating negotiate request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := hc.Do(req)
		if err != nil {
			return "", "", fmt.Errorf("negotiating: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", "", fmt.Errorf("reading negotiate response: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return "", "", ErrUnauthorized
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", "", fmt.Errorf("negotiate: unexpected status %d", resp.StatusCode)
		}

		var nr negotiateResponse
		if err := json.Unmarshal(body, &nr); err != nil {
			return "", "", fmt.Errorf("decoding negotiate response: %w", err)
		}
		if nr.Error != "" {
			return "", "", fmt.Errorf("negotiate: %s", nr.Error)
		}
		if nr.URL != "" {
			hubURL = nr.URL
			if nr.AccessToken != "" {
				token = nr.AccessToken
			}
			continue
		}

		id := nr.ConnectionToken
		if nr.NegotiateVersion == 0 || id == "" {
			id = nr.ConnectionID
		}
		u, err := websocketURL(hubURL, id, token)
		return u, token, err
	}
	return "", "", errors.New("negotiate: too many redirects")
}

// websocketURL maps an http(s) hub URL to its ws(s) endpoint.
func websocketURL(hubURL, connectionID, token string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("parsing hub url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("hub url %q: unsupported scheme", hubURL)
	}
	q := u.Query()
	if connectionID != "" {
		q.Set("id", connectionID)
	}
	if token != "" {
		q.Set("access_token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// hubConn is one WebSocket connection past the handshake. Reads happen on
// a single goroutine; writes are serialized by writeMu.
type hubConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	pending []byte
}

func (c *hubConn) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *hubConn) send(msg hubMessage) error {
	data, err := encodeRecord(msg)
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

// readRecords blocks until at least one complete record arrives or the
// deadline passes.
func (c *hubConn) readRecords(deadline time.Time) ([][]byte, error) {
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		var records [][]byte
		records, c.pending = splitRecords(append(c.pending, data...))
		if len(records) > 0 {
			return records, nil
		}
	}
}

func (c *hubConn) handshake(timeout time.Duration) ([][]byte, error) {
	if err := c.writeRaw(append([]byte(handshakeFormat), recordSeparator)); err != nil {
		return nil, fmt.Errorf("sending handshake: %w", err)
	}
	records, err := c.readRecords(time.Now().Add(timeout))
	if err != nil {
		return nil, fmt.Errorf("reading handshake: %w", err)
	}
	var hr handshakeResponse
	if err := json.Unmarshal(records[0], &hr); err != nil {
		return nil, fmt.Errorf("decoding handshake: %w", err)
	}
	if hr.Error != "" {
		return nil, fmt.Errorf("handshake rejected: %s", hr.Error)
	}
	return records[1:], nil
}

func (c *hubConn) close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
