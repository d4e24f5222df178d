package main

import (
	"strconv"

	"github.com/pterm/pterm"

	"github.com/luca-patrignani/mental-poker-sync/domain/poker"
)

func getResultsPanel(lh lastHand) pterm.Panel {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	infoString := ""
	for _, r := range lh.Results {
		infoString += printSingleWinnerInfo(r)
	}
	if infoString == "" {
		infoString = "Nobody won anything"
	}
	return pterm.Panel{Data: pbox.WithTitle(pterm.LightGreen("|SHOWDOWN " + strconv.Itoa(lh.Number) + "|")).WithTitleTopCenter().Sprint(infoString)}
}

func printSingleWinnerInfo(r handResult) string {
	if r.Hand == "" {
		return pterm.Sprintfln("%s won %d Taking down the pot", pterm.LightCyan(r.Name), r.Amount)
	}
	cards := ""
	for _, n := range r.Cards {
		if c, err := poker.IntToCard(n); err == nil {
			cards += c.String() + " "
		}
	}
	return pterm.Sprintfln("%s won %d with %s %s", pterm.LightCyan(r.Name), r.Amount, r.Hand, cards)
}

func printState(s poker.Session, seat int, hand [2]poker.Card, additionalPanel ...pterm.Panel) {
	var panels []pterm.Panel
	var mainPlayer pterm.Panel
	for i, p := range s.Players {
		if i != seat {
			panels = append(panels, pterm.Panel{Data: printPlayerInfo(p, false)})
		} else {
			p.Hand = hand
			mainPlayer = pterm.Panel{Data: printPlayerInfo(p, true)}
		}
	}
	board := pterm.Panel{Data: printBoardInfo(s.Board[:], s.Round, s.Pots)}
	dashboard := []pterm.Panel{mainPlayer}
	dashboard = append(dashboard, additionalPanel...)

	pterm.DefaultPanel.WithPanels([][]pterm.Panel{
		panels,
		{board},
		dashboard,
	}).Render()
}

func printPlayerInfo(p poker.Player, main bool) string {
	hpadding := 4
	if main {
		hpadding = 10
	}
	pbox := pterm.DefaultBox.WithHorizontalPadding(hpadding).WithTopPadding(1).WithBottomPadding(1)
	var active string
	if p.HasFolded {
		active = pterm.LightRed("Folded")
	} else {
		active = pterm.LightGreen("Active")
	}
	hand := pterm.BgGreen.Sprintf("%s - %s", p.Hand[0].String(), p.Hand[1].String())
	return pbox.WithTitle(p.Name).WithTitleTopLeft().Sprintf("%s\nCurrent Bet: %d\nBankroll: %d\n%s\n", active, p.Bet, p.Chips, hand)
}

func printBoardInfo(b []poker.Card, round poker.Round, pots []poker.Pot) string {
	board := ""
	for _, c := range b {
		board += c.String() + " - "
	}
	for i, p := range pots {
		board += " Pot" + strconv.Itoa(i) + ": " + strconv.Itoa(int(p.Amount)) + " | "
	}

	return pterm.BgGreen.Sprint("\n" + board + string(round) + "\n")
}
