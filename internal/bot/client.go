package bot

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Sentinel errors the worker switches on.
var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrSessionExpired  = errors.New("session expired")
	ErrGameNotFound    = errors.New("game no longer exists")
	ErrBadCredentials  = errors.New("bad credentials")
)

// Hosts this build must never talk to. The bot is for private servers; a
// misconfigured GEMP_URL should fail loudly, not grief the public ladder.
var blockedHosts = []string{"gemp.starwarsccg.org", "www.starwarsccg.org"}

// Table is one row in the hall table list.
type Table struct {
	ID      string
	Name    string
	Format  string
	Status  string
	GameID  string
	Players []TablePlayer
}

// TablePlayer is one seated player with the side they drew.
type TablePlayer struct {
	Name string
	Side swccg.Side
}

// HasPlayer reports whether a player by that name sits at the table.
func (t *Table) HasPlayer(name string) bool {
	for _, p := range t.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

// OpponentOf returns the first seated player that is not the given name.
func (t *Table) OpponentOf(name string) string {
	for _, p := range t.Players {
		if p.Name != name {
			return p.Name
		}
	}
	return ""
}

// Deck is one deck the server offers.
type Deck struct {
	Name    string
	Side    swccg.Side
	Library bool
}

// ChatMessage is one game chat line.
type ChatMessage struct {
	From string
	Text string
	ID   int
}

// Client talks to a GEMP server over its form-POST/XML protocol. The worker
// goroutine owns it; the chat queue may post messages concurrently, which the
// underlying http.Client handles.
type Client struct {
	baseURL   string
	username  string
	localFast bool
	httpC     *http.Client
	loggedIn  atomic.Bool
	log       zerolog.Logger
}

// NewClient creates a client for one GEMP server. The URL is checked against
// the blocked host list before anything else.
func NewClient(baseURL, username string, timeout time.Duration, localFast bool, log zerolog.Logger) (*Client, error) {
	lower := strings.ToLower(baseURL)
	for _, blocked := range blockedHosts {
		if strings.Contains(lower, blocked) {
			return nil, fmt.Errorf("refusing to connect to production server %q", blocked)
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		username:  username,
		localFast: localFast,
		httpC:     &http.Client{Timeout: timeout, Jar: jar},
		log:       log,
	}, nil
}

// Username returns the account name the client logs in as.
func (c *Client) Username() string { return c.username }

// LoggedIn reports whether the session is believed valid.
func (c *Client) LoggedIn() bool { return c.loggedIn.Load() }

// Login authenticates and stores the session cookie.
func (c *Client) Login(ctx context.Context, password string) error {
	status, body, err := c.postForm(ctx, "/login", url.Values{
		"login":    {c.username},
		"password": {password},
	})
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("login: %w", ErrBadCredentials)
	case status != http.StatusOK:
		return fmt.Errorf("login: status %d", status)
	}
	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "error") || strings.Contains(lower, "invalid") {
		return fmt.Errorf("login: %w", ErrBadCredentials)
	}

	c.loggedIn.Store(true)
	c.log.Info().Str("user", c.username).Msg("Logged in")
	return nil
}

// Logout drops the session state. GEMP has no logout endpoint; clearing the
// cookie jar is all a client can do.
func (c *Client) Logout() {
	c.loggedIn.Store(false)
	if jar, err := cookiejar.New(nil); err == nil {
		c.httpC.Jar = jar
	}
	c.log.Info().Msg("Logged out")
}

// HallTables fetches the full hall listing with its channel number.
func (c *Client) HallTables(ctx context.Context) ([]Table, int, error) {
	if !c.loggedIn.Load() {
		return nil, 0, ErrNotLoggedIn
	}
	status, body, err := c.getForm(ctx, "/hall", url.Values{"participantId": {"null"}})
	if err != nil {
		return nil, 0, fmt.Errorf("hall request: %w", err)
	}
	if status != http.StatusOK {
		return nil, 0, fmt.Errorf("hall: status %d", status)
	}
	tables, cn := parseHallTables(body, 0)
	return tables, cn, nil
}

// UpdateHall polls the incremental hall endpoint. A stale channel number
// (409) falls back to the full listing.
func (c *Client) UpdateHall(ctx context.Context, channelNumber int) ([]Table, int, error) {
	if !c.loggedIn.Load() {
		return nil, channelNumber, ErrNotLoggedIn
	}
	status, body, err := c.postForm(ctx, "/hall/update", url.Values{
		"channelNumber": {strconv.Itoa(channelNumber)},
		"participantId": {"null"},
	})
	if err != nil {
		return nil, channelNumber, fmt.Errorf("hall update: %w", err)
	}
	switch status {
	case http.StatusOK:
		tables, cn := parseHallTables(body, channelNumber)
		return tables, cn, nil
	case http.StatusConflict:
		c.log.Warn().Msg("Hall channel stale, refetching")
		return c.HallTables(ctx)
	default:
		return nil, channelNumber, fmt.Errorf("hall update: status %d", status)
	}
}

// CreateTable creates a table and resolves its id by re-reading the hall.
// GEMP does not return the id directly, so the hall is fetched up to three
// times looking for a table with the requested name and us seated. An empty
// id with nil error means the table was created but never showed up.
func (c *Client) CreateTable(ctx context.Context, deckName, tableName, format string, library bool) (string, error) {
	if !c.loggedIn.Load() {
		return "", ErrNotLoggedIn
	}
	status, body, err := c.postForm(ctx, "/hall", url.Values{
		"participantId": {"null"},
		"deckName":      {deckName},
		"sampleDeck":    {boolString(library)},
		"format":        {format},
		"tableDesc":     {tableName},
		"isPrivate":     {"false"},
	})
	if err != nil {
		return "", fmt.Errorf("create table: %w", err)
	}
	if msg := parseErrorBody(body); msg != "" {
		return "", fmt.Errorf("create table: %s", msg)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("create table: status %d", status)
	}

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
				return "", err
			}
		}
		tables, _, err := c.HallTables(ctx)
		if err != nil {
			continue
		}
		for i := range tables {
			if tables[i].Name == tableName && tables[i].HasPlayer(c.username) {
				c.log.Info().Str("tableId", tables[i].ID).Str("table", tableName).Msg("Table created")
				return tables[i].ID, nil
			}
		}
	}
	c.log.Warn().Str("table", tableName).Msg("Table created but id not found in hall")
	return "", nil
}

// JoinTable sits down at an existing table.
func (c *Client) JoinTable(ctx context.Context, tableID, deckName string, library bool) error {
	if !c.loggedIn.Load() {
		return ErrNotLoggedIn
	}
	status, body, err := c.postForm(ctx, "/hall/"+tableID, url.Values{
		"deckName":   {deckName},
		"sampleDeck": {boolString(library)},
	})
	if err != nil {
		return fmt.Errorf("join table: %w", err)
	}
	if msg := parseErrorBody(body); msg != "" {
		return fmt.Errorf("join table: %s", msg)
	}
	if status != http.StatusOK {
		return fmt.Errorf("join table: status %d", status)
	}
	return nil
}

// LeaveTable drops from a table that has not started.
func (c *Client) LeaveTable(ctx context.Context, tableID string) error {
	if !c.loggedIn.Load() {
		return ErrNotLoggedIn
	}
	status, _, err := c.postForm(ctx, "/hall/"+tableID, url.Values{
		"participantId": {"null"},
		"action":        {"drop"},
	})
	if err != nil {
		return fmt.Errorf("leave table: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("leave table: status %d", status)
	}
	return nil
}

// LibraryDecks lists the server's sample decks.
func (c *Client) LibraryDecks(ctx context.Context) ([]Deck, error) {
	return c.deckList(ctx, "/deck/libraryList", true)
}

// UserDecks lists the account's personal decks.
func (c *Client) UserDecks(ctx context.Context) ([]Deck, error) {
	return c.deckList(ctx, "/deck/list", false)
}

func (c *Client) deckList(ctx context.Context, path string, library bool) ([]Deck, error) {
	if !c.loggedIn.Load() {
		return nil, ErrNotLoggedIn
	}
	status, body, err := c.getForm(ctx, path, url.Values{"participantId": {"null"}})
	if err != nil {
		return nil, fmt.Errorf("deck list: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("deck list: status %d", status)
	}
	return parseDeckList(body, library)
}

// JoinGame opens a game session and returns the initial game state XML.
func (c *Client) JoinGame(ctx context.Context, gameID string) ([]byte, error) {
	if !c.loggedIn.Load() {
		return nil, ErrNotLoggedIn
	}
	status, body, err := c.getForm(ctx, "/game/"+gameID, url.Values{"participantId": {"null"}})
	if err != nil {
		return nil, fmt.Errorf("join game: %w", err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrGameNotFound
	default:
		return nil, fmt.Errorf("join game: status %d", status)
	}
	c.log.Info().Str("gameId", gameID).Int("bytes", len(body)).Msg("Joined game")
	return body, nil
}

// GameUpdate long-polls for new events past the given channel number. A 409
// means the server dropped the session; the caller must re-login and re-join.
func (c *Client) GameUpdate(ctx context.Context, gameID string, channelNumber int) ([]byte, error) {
	if !c.loggedIn.Load() {
		return nil, ErrNotLoggedIn
	}
	interval := "3000"
	if c.localFast {
		interval = "100"
	}
	status, body, err := c.postForm(ctx, "/game/"+gameID, url.Values{
		"participantId":       {"null"},
		"channelNumber":       {strconv.Itoa(channelNumber)},
		"longPollingInterval": {interval},
	})
	if err != nil {
		return nil, fmt.Errorf("game update: %w", err)
	}
	switch status {
	case http.StatusOK:
		return body, nil
	case http.StatusConflict:
		c.loggedIn.Store(false)
		return nil, ErrSessionExpired
	case http.StatusNotFound:
		return nil, ErrGameNotFound
	default:
		return nil, fmt.Errorf("game update: status %d: %s", status, truncate(body, 200))
	}
}

// PostDecision answers a decision and returns the update XML the server
// responds with, which carries the events the answer triggered.
func (c *Client) PostDecision(ctx context.Context, gameID string, channelNumber int, decisionID, value string) ([]byte, error) {
	if !c.loggedIn.Load() {
		return nil, ErrNotLoggedIn
	}
	c.log.Info().Str("decisionId", decisionID).Str("value", value).Msg("Posting decision")
	status, body, err := c.postForm(ctx, "/game/"+gameID, url.Values{
		"participantId": {"null"},
		"channelNumber": {strconv.Itoa(channelNumber)},
		"decisionId":    {decisionID},
		"decisionValue": {value},
	})
	if err != nil {
		return nil, fmt.Errorf("post decision: %w", err)
	}
	switch status {
	case http.StatusOK:
		return body, nil
	case http.StatusConflict:
		c.loggedIn.Store(false)
		return nil, ErrSessionExpired
	default:
		return nil, fmt.Errorf("post decision: status %d: %s", status, truncate(body, 200))
	}
}

// CardInfo fetches the HTML tooltip for a card in game, which carries force
// drain amounts and modifiers the event stream does not.
func (c *Client) CardInfo(ctx context.Context, gameID, cardID string) (string, error) {
	if !c.loggedIn.Load() {
		return "", ErrNotLoggedIn
	}
	status, body, err := c.getForm(ctx, "/game/"+gameID+"/cardInfo", url.Values{
		"participantId": {"null"},
		"cardId":        {cardID},
	})
	if err != nil {
		return "", fmt.Errorf("card info: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("card info: status %d", status)
	}
	return string(body), nil
}

// Concede forfeits the game.
func (c *Client) Concede(ctx context.Context, gameID string) error {
	if !c.loggedIn.Load() {
		return ErrNotLoggedIn
	}
	c.log.Info().Str("gameId", gameID).Msg("Conceding game")
	status, _, err := c.postForm(ctx, "/game/"+gameID+"/concede", url.Values{"participantId": {"null"}})
	if err != nil {
		return fmt.Errorf("concede: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("concede: status %d", status)
	}
	return nil
}

// RegisterChat joins the game chat room and returns the newest message id,
// so old messages are not replayed as commands.
func (c *Client) RegisterChat(ctx context.Context, gameID string) (int, error) {
	if !c.loggedIn.Load() {
		return 0, ErrNotLoggedIn
	}
	status, body, err := c.getForm(ctx, "/chat/Game"+gameID, url.Values{"participantId": {"null"}})
	if err != nil {
		return 0, fmt.Errorf("register chat: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("register chat: status %d", status)
	}
	_, lastID := parseChatMessages(body, 0)
	c.log.Info().Str("gameId", gameID).Int("lastMsgId", lastID).Msg("Registered with chat")
	return lastID, nil
}

// ChatMessages polls for chat lines newer than lastMsgID. A 410 means the
// room evicted us for inactivity; re-registering resumes from the room's
// current head so no phantom backlog is replayed.
func (c *Client) ChatMessages(ctx context.Context, gameID string, lastMsgID int) ([]ChatMessage, int, error) {
	if !c.loggedIn.Load() {
		return nil, lastMsgID, ErrNotLoggedIn
	}
	status, body, err := c.postForm(ctx, "/chat/Game"+gameID, url.Values{
		"participantId":   {"null"},
		"latestMsgIdRcvd": {strconv.Itoa(lastMsgID)},
	})
	if err != nil {
		return nil, lastMsgID, fmt.Errorf("chat poll: %w", err)
	}
	switch status {
	case http.StatusOK:
		msgs, newLast := parseChatMessages(body, lastMsgID)
		return msgs, newLast, nil
	case http.StatusGone:
		c.log.Warn().Str("gameId", gameID).Msg("Evicted from chat room, re-registering")
		newLast, err := c.RegisterChat(ctx, gameID)
		if err != nil {
			return nil, lastMsgID, err
		}
		return nil, newLast, nil
	default:
		return nil, lastMsgID, fmt.Errorf("chat poll: status %d", status)
	}
}

// PostChat sends a chat line as the logged-in user.
func (c *Client) PostChat(ctx context.Context, gameID, message string) error {
	if !c.loggedIn.Load() {
		return ErrNotLoggedIn
	}
	status, _, err := c.postForm(ctx, "/chat/Game"+gameID, url.Values{
		"participantId": {c.username},
		"message":       {message},
	})
	if err != nil {
		return fmt.Errorf("post chat: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("post chat: status %d", status)
	}
	return nil
}

// LeaveChat stops participation in a game's chat. GEMP has no leave endpoint;
// the room drops us once polling stops.
func (c *Client) LeaveChat(gameID string) {
	c.log.Info().Str("gameId", gameID).Msg("Left chat")
}

func (c *Client) getForm(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	// Browser-shaped headers keep reverse proxies in front of GEMP happy.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/xml, text/xml, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpC.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// parseHallTables reads table rows and the channel number from hall XML.
// Table names arrive in the tournament attribute with a "Casual - " prefix.
func parseHallTables(data []byte, defaultCN int) ([]Table, int) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var tables []Table
	cn := defaultCN
	seenRoot := false

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !seenRoot || se.Name.Local == "hall" {
			for _, attr := range se.Attr {
				if attr.Name.Local == "channelNumber" {
					if n, err := strconv.Atoi(attr.Value); err == nil {
						cn = n
					}
				}
			}
			seenRoot = true
			if se.Name.Local != "table" {
				continue
			}
		}

		if se.Name.Local != "table" {
			continue
		}
		var table Table
		var playersRaw string
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "id":
				table.ID = attr.Value
			case "tournament":
				table.Name = strings.Replace(attr.Value, "Casual - ", "", 1)
			case "status":
				table.Status = strings.ToLower(attr.Value)
			case "format":
				table.Format = attr.Value
			case "gameId":
				table.GameID = attr.Value
			case "players":
				playersRaw = attr.Value
			}
		}
		if table.ID == "" {
			continue
		}
		table.Players = parseTablePlayers(playersRaw)
		tables = append(tables, table)
	}
	return tables, cn
}

// parseTablePlayers splits "rando_cal (LIGHT),human (DARK)" into players.
func parseTablePlayers(raw string) []TablePlayer {
	if raw == "" {
		return nil
	}
	var players []TablePlayer
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name := entry
		var side swccg.Side
		if i := strings.Index(entry, " ("); i >= 0 && strings.HasSuffix(entry, ")") {
			name = strings.TrimSpace(entry[:i])
			side = swccg.ParseSide(entry[i+2 : len(entry)-1])
		}
		players = append(players, TablePlayer{Name: name, Side: side})
	}
	return players
}

func parseDeckList(data []byte, library bool) ([]Deck, error) {
	var doc struct {
		Dark  []string `xml:"darkDeck"`
		Light []string `xml:"lightDeck"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse deck list: %w", err)
	}
	decks := make([]Deck, 0, len(doc.Dark)+len(doc.Light))
	for _, name := range doc.Dark {
		if name != "" {
			decks = append(decks, Deck{Name: name, Side: swccg.SideDark, Library: library})
		}
	}
	for _, name := range doc.Light {
		if name != "" {
			decks = append(decks, Deck{Name: name, Side: swccg.SideLight, Library: library})
		}
	}
	return decks, nil
}

// parseChatMessages returns the lines newer than lastID with the new head id.
func parseChatMessages(data []byte, lastID int) ([]ChatMessage, int) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var msgs []ChatMessage
	newLast := lastID

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "message" {
			continue
		}
		var msg struct {
			From  string `xml:"from,attr"`
			MsgID string `xml:"msgId,attr"`
			Text  string `xml:",chardata"`
		}
		if err := dec.DecodeElement(&msg, &se); err != nil {
			continue
		}
		id, _ := strconv.Atoi(msg.MsgID)
		if id > lastID {
			msgs = append(msgs, ChatMessage{From: msg.From, Text: msg.Text, ID: id})
			if id > newLast {
				newLast = id
			}
		}
	}
	return msgs, newLast
}

// parseErrorBody extracts the text of an <error> element anywhere in the
// body. GEMP reports many failures as HTTP 200 with an error document.
func parseErrorBody(data []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "error" {
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &se); err != nil {
			return ""
		}
		return strings.TrimSpace(text)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
