package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"

	"github.com/BioHazard786/vanish/internal/session"
)

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// RosterView renders the other room members and their channel state.
func RosterView(peers []session.PeerInfo) string {
	if len(peers) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	rows := make([][]string, 0, len(peers))
	for i, p := range peers {
		channel := "relay"
		if p.State == session.StateChannelOpen {
			channel = "direct (" + p.Role.String() + ")"
		} else if p.State == session.StateNegotiating {
			channel = "connecting"
		}
		encrypted := "no"
		if p.Encrypted {
			encrypted = IconLock + " yes"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), p.ID, channel, encrypted})
	}
	return styledTable([]string{"#", "Peer", "Channel", "E2EE"}, rows).Render()
}

// StatusBadge renders the connection indicator.
func StatusBadge(s session.Status) string {
	switch s {
	case session.StatusP2P:
		return P2PBadgeStyle.Render(IconP2P + " P2P")
	case session.StatusRelay:
		return RelayBadgeStyle.Render(IconRelay + " RELAY")
	case session.StatusWaiting:
		return WaitingBadgeStyle.Render(IconWaiting + " WAITING")
	default:
		return DisconnectedBadgeStyle.Render("OFFLINE")
	}
}

// RoomBox announces a room and how others can enter it.
func RoomBox(roomID, serverURL string, created bool) string {
	title := "Joined room"
	if created {
		title = "Room ready"
	}
	join := "vanish join " + roomID
	if serverURL != "" {
		join += " --server " + serverURL
	}
	content := fmt.Sprintf("%s %s\n\n%s Room ID:  %s\n%s Share:    %s",
		IconSuccess, BoldStyle.Render(title),
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconCopy, MutedStyle.Render(join),
	)
	return SuccessBoxStyle.Render(content)
}

// ServerInfoView renders what a signaling server reports about itself.
func ServerInfoView(ip string, port int, url string) string {
	t := pretty.NewWriter()
	t.SetTitle("Signaling server")
	t.AppendHeader(pretty.Row{"Field", "Value"})
	t.AppendRows([]pretty.Row{
		{"IP", ip},
		{"Port", port},
		{"URL", url},
	})
	t.SetStyle(pretty.StyleRounded)
	return t.Render()
}

// ServerBanner lists the addresses a freshly started server can be reached at.
func ServerBanner(port int, addrs []string, maxUsers int) string {
	t := pretty.NewWriter()
	t.SetTitle(IconWeb + " vanish signaling server")
	t.AppendHeader(pretty.Row{"Endpoint", "Address"})
	t.AppendRow(pretty.Row{"WebSocket", fmt.Sprintf("ws://localhost:%d/ws", port)})
	for _, addr := range addrs {
		t.AppendRow(pretty.Row{"WebSocket (LAN)", fmt.Sprintf("ws://%s:%d/ws", addr, port)})
	}
	t.AppendSeparator()
	t.AppendRow(pretty.Row{"Health", fmt.Sprintf("http://localhost:%d/health", port)})
	t.AppendRow(pretty.Row{"Server info", fmt.Sprintf("http://localhost:%d/api/server-info", port)})
	t.AppendFooter(pretty.Row{"Max users per room", maxUsers})
	t.SetStyle(pretty.StyleRounded)
	return t.Render()
}
