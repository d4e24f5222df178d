package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/luca-patrignani/mental-poker-sync/config"
	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/discovery"
	"github.com/luca-patrignani/mental-poker-sync/domain/poker"
	"github.com/luca-patrignani/mental-poker-sync/engine"
	"github.com/luca-patrignani/mental-poker-sync/network"
	"github.com/luca-patrignani/mental-poker-sync/state"
	"github.com/luca-patrignani/mental-poker-sync/syncer"
)

const defaultPort = 8080

type playOptions struct {
	server   string
	name     string
	config   string
	ca       string
	ws       bool
	compress bool
	timeout  time.Duration
	poll     time.Duration
}

func parsePlay(args []string) (playOptions, error) {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	o := playOptions{}
	fs.StringVar(&o.server, "server", "", "table address; a partial ip like 42 or 0.42:8080 is completed from the local address. Empty searches the discovery ports")
	fs.StringVar(&o.name, "name", "", "your name at the table")
	fs.StringVar(&o.config, "config", "", "YAML file with the sync options")
	fs.StringVar(&o.ca, "ca", "", "PEM certificate of a table served with -tls")
	fs.BoolVar(&o.ws, "ws", false, "sync over a websocket instead of http requests")
	fs.BoolVar(&o.compress, "compress", false, "snappy compress requests")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "timeout of each request")
	fs.DurationVar(&o.poll, "poll", 500*time.Millisecond, "how often to check the table while waiting")
	if err := fs.Parse(args); err != nil {
		return playOptions{}, err
	}
	if o.name == "" {
		return playOptions{}, errors.New("-name is required")
	}
	if o.poll <= 0 {
		return playOptions{}, errors.New("poll must be positive")
	}
	return o, nil
}

// clientConfig loads the sync options of a player. Without a file the
// authority wins every conflict, since the table state is owned by it.
func clientConfig(path string) (config.Options, error) {
	if path == "" {
		cfg := config.Default()
		cfg.ConflictResolution = state.PolicyRemote
		return cfg, nil
	}
	return config.Load(path)
}

// table is the view of one player on the shared table state.
type table struct {
	eng     *engine.Engine
	fetch   *network.HTTPTransport
	client  *http.Client
	name    string
	seat    int
	hand    holeCards
	settled int
	logger  *slog.Logger
}

func play(ctx context.Context, args []string, logger *slog.Logger) error {
	o, err := parsePlay(args)
	if err != nil {
		return err
	}
	cfg, err := clientConfig(o.config)
	if err != nil {
		return err
	}
	address, err := locateTable(ctx, o.server)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: o.timeout}
	var tlsConfig *tls.Config
	if o.ca != "" {
		pem, err := os.ReadFile(o.ca)
		if err != nil {
			return err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no certificate in %s", o.ca)
		}
		tlsConfig = &tls.Config{RootCAs: pool}
		client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
		if !strings.Contains(address, "://") {
			address = "https://" + address
		}
	}
	httpOpts := []network.Option{network.WithHTTPClient(client)}
	if o.compress {
		httpOpts = append(httpOpts, network.WithCompression())
	}
	fetch := network.NewHTTPTransport(address, httpOpts...)

	var transport syncer.Transport = fetch
	if o.ws {
		dialer := &websocket.Dialer{TLSClientConfig: tlsConfig, HandshakeTimeout: o.timeout}
		ws, err := network.DialWebSocket(ctx, webSocketURL(fetch.BaseURL), dialer, nil)
		if err != nil {
			return err
		}
		defer ws.Close()
		transport = ws
	}

	eng := engine.New(transport, engine.WithConfig(cfg), engine.WithLogger(logger))
	defer eng.Destroy()
	t := &table{eng: eng, fetch: fetch, client: client, name: o.name, logger: logger}
	spinner, _ := pterm.DefaultSpinner.Start("Joining the table at " + fetch.BaseURL + " ...")
	if err := t.join(ctx); err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	pterm.Success.Printfln("Seated at seat %d", t.seat)
	eng.StartSync()
	return t.run(ctx, o.poll)
}

// locateTable turns the -server flag into the address of a table.
func locateTable(ctx context.Context, server string) (string, error) {
	if server != "" {
		if strings.Contains(server, "://") {
			return server, nil
		}
		return resolveAddress(server, localIPv4(), defaultPort)
	}

	spinner, _ := pterm.DefaultSpinner.Start("Searching for tables ...")
	entries, err := discovery.Find(ctx, discovery.WithAttempts(10, time.Second))
	if err != nil {
		spinner.Fail()
		return "", err
	}
	if len(entries) == 0 {
		spinner.Fail()
		return "", errors.New("no table found, use -server")
	}
	spinner.Success()
	if len(entries) == 1 {
		return entries[0].URL, nil
	}
	options := make([]string, len(entries))
	for i, e := range entries {
		options[i] = e.Name + " " + e.URL
	}
	selected, _ := pterm.DefaultInteractiveSelect.WithDefaultText("Select a table").WithOptions(options).Show()
	for i, opt := range options {
		if opt == selected {
			return entries[i].URL, nil
		}
	}
	return entries[0].URL, nil
}

func webSocketURL(base string) string {
	return "ws" + strings.TrimPrefix(base, "http") + network.WebSocketPath
}

// join loads the table state and finds the seat of the player.
func (t *table) join(ctx context.Context) error {
	if err := t.refresh(ctx); err != nil {
		return err
	}
	seat, err := seatOf(t.eng.GetState(), t.name)
	if err != nil {
		return err
	}
	t.seat = seat
	return nil
}

// refresh reconciles the authoritative snapshot into the local state.
func (t *table) refresh(ctx context.Context) error {
	version, data, err := t.fetch.FetchState(ctx)
	if err != nil {
		return fmt.Errorf("fetching table: %w", err)
	}
	conflicts, err := t.eng.ReconcileSnapshot(version, data)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		t.logger.Debug("table reconciled", "version", version, "conflicts", len(conflicts))
	}
	return nil
}

func (t *table) run(ctx context.Context, poll time.Duration) error {
	for {
		if err := t.refresh(ctx); err != nil {
			return err
		}
		s, err := poker.FromState(t.eng.GetState())
		if err != nil {
			return err
		}
		if err := t.fetchHand(ctx); err != nil {
			t.logger.Warn("hole cards not available", "error", err)
		}

		var extra []pterm.Panel
		if lh, ok := decodeLastHand(t.eng.GetState()); ok && lh.Number > t.settled {
			t.settled = lh.Number
			extra = append(extra, getResultsPanel(lh))
		}
		printState(s, t.seat, t.cards(), extra...)

		if s.Round != poker.Showdown && s.CurrentTurn == t.seat {
			if err := t.act(ctx); err != nil {
				return err
			}
			continue
		}
		current := "the dealer"
		if s.Round != poker.Showdown && s.CurrentTurn < len(s.Players) {
			current = s.Players[s.CurrentTurn].Name
		}
		if err := t.wait(ctx, poll, current); err != nil {
			return err
		}
	}
}

var actionTypes = map[string]poker.ActionType{
	"Fold":  poker.ActionFold,
	"Check": poker.ActionCheck,
	"Call":  poker.ActionCall,
	"Bet":   poker.ActionBet,
	"Raise": poker.ActionRaise,
	"AllIn": poker.ActionAllIn,
}

// act asks the player for an action until a legal one is confirmed, then
// sends it.
func (t *table) act(ctx context.Context) error {
	actions := []string{"Fold", "Check", "Call", "Bet", "Raise", "AllIn"}
	area, _ := pterm.DefaultArea.Start()
	var a poker.Action
	for {
		selected, _ := pterm.DefaultInteractiveSelect.WithDefaultText("Select your next action").WithOptions(actions).Show()
		a = poker.Action{Type: actionTypes[selected]}
		if a.Type == poker.ActionBet || a.Type == poker.ActionRaise {
			input, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("Enter the amount").Show()
			amount, err := strconv.ParseUint(strings.TrimSpace(input), 10, 32)
			if err != nil {
				area.Update()
				pterm.Error.Printfln("Invalid amount %q", input)
				continue
			}
			a.Amount = uint(amount)
		}
		if _, err := t.propose(a); err != nil {
			area.Update()
			pterm.Error.Printfln("Invalid action: %s", err.Error())
			continue
		}
		if confirm, _ := pterm.DefaultInteractiveConfirm.WithDefaultText(fmt.Sprintf("Confirm to %s?", selected)).WithDefaultValue(true).Show(); confirm {
			area.Stop()
			break
		}
		area.Update()
		pterm.Info.Println("Action cancelled.")
	}
	return t.apply(ctx, a)
}

// propose plays a on a copy of the local table and returns the resulting
// table state.
func (t *table) propose(a poker.Action) (map[string]any, error) {
	s, err := poker.FromState(t.eng.GetState())
	if err != nil {
		return nil, err
	}
	if t.seat >= len(s.Players) {
		return nil, fmt.Errorf("seat %d not at the table", t.seat)
	}
	a.PlayerID = s.Players[t.seat].ID
	return s.Act(a)
}

// apply plays a and syncs the result. A rejected or undelivered action is
// reported and dropped; the next refresh brings the table up to date.
func (t *table) apply(ctx context.Context, a poker.Action) error {
	next, err := t.propose(a)
	if err != nil {
		return err
	}
	_, err = t.eng.UpdateState(ctx, next)
	var rejected *syncer.RejectedError
	switch {
	case errors.As(err, &rejected):
		pterm.Warning.Printfln("The table moved on before your %s arrived (%d fields differ)", a.Type, len(rejected.Conflicts))
		return nil
	case errors.Is(err, syncer.ErrSyncFailed):
		pterm.Warning.Printfln("Your %s could not be delivered: %s", a.Type, err.Error())
		return nil
	}
	return err
}

func (t *table) wait(ctx context.Context, poll time.Duration, current string) error {
	spinner, _ := pterm.DefaultSpinner.Start(pterm.Sprintf("Waiting for %s ...", pterm.LightCyan(current)))
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			spinner.Fail()
			return ctx.Err()
		case <-ticker.C:
			_, data, err := t.fetch.FetchState(ctx)
			if err != nil {
				spinner.Fail()
				return err
			}
			if !delta.Equal(data, t.eng.GetState()) {
				spinner.Success()
				return nil
			}
		}
	}
}

// fetchHand asks the dealer for the hole cards of the seat.
func (t *table) fetchHand(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/hand/%d", t.fetch.BaseURL, t.seat), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hand: unexpected status code %d", resp.StatusCode)
	}
	var h holeCards
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return err
	}
	t.hand = h
	return nil
}

func (t *table) cards() [2]poker.Card {
	var out [2]poker.Card
	for i, n := range t.hand.Cards {
		if c, err := poker.IntToCard(n); err == nil {
			out[i] = c
		}
	}
	return out
}

func seatOf(data map[string]any, name string) (int, error) {
	s, err := poker.FromState(data)
	if err != nil {
		return 0, err
	}
	names := make([]string, len(s.Players))
	for i, p := range s.Players {
		if p.Name == name {
			return i, nil
		}
		names[i] = p.Name
	}
	return 0, fmt.Errorf("no seat for %q, the table seats %s", name, strings.Join(names, ", "))
}

type handResult struct {
	Seat   int    `json:"seat"`
	Name   string `json:"name"`
	Amount uint   `json:"amount"`
	Hand   string `json:"hand"`
	Cards  [2]int `json:"cards"`
}

type lastHand struct {
	Number  int          `json:"number"`
	Results []handResult `json:"results"`
}

func decodeLastHand(data map[string]any) (lastHand, bool) {
	v, ok := data[keyLastHand]
	if !ok {
		return lastHand{}, false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return lastHand{}, false
	}
	var lh lastHand
	if err := json.Unmarshal(b, &lh); err != nil {
		return lastHand{}, false
	}
	return lh, true
}
