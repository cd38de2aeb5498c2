package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/protocol"
	"github.com/manpreetbhatti/showroom/internal/wsclient"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderStores(w io.Writer, stores []catalog.Store) {
	table := newTable(w, []string{"ID", "Name", "Models", "Active Users"})
	for _, s := range stores {
		table.Append([]string{
			s.ID,
			s.Name,
			strconv.Itoa(len(s.Models)),
			strconv.Itoa(s.ActiveUsers),
		})
	}
	table.Render()
}

func renderStore(w io.Writer, s catalog.Store) {
	fmt.Fprintf(w, "%s  %s  (%d active)\n\n", s.ID, s.Name, s.ActiveUsers)

	table := newTable(w, []string{"Model", "X", "Y", "Width", "Height", "URL"})
	for _, m := range s.Models {
		table.Append([]string{
			m.ID,
			strconv.FormatFloat(m.Position.X, 'f', 3, 64),
			strconv.FormatFloat(m.Position.Y, 'f', 3, 64),
			strconv.FormatFloat(m.Scale.Width, 'f', -1, 64),
			strconv.FormatFloat(m.Scale.Height, 'f', -1, 64),
			m.URL,
		})
	}
	table.Render()
}

// Prints every room event as it arrives
type eventPrinter struct {
	out    io.Writer
	colors bool
	now    func() time.Time
	mu     sync.Mutex
}

func newEventPrinter(out io.Writer, colors bool) *eventPrinter {
	return &eventPrinter{out: out, colors: colors, now: time.Now}
}

func (p *eventPrinter) wrap(next wsclient.Handler) wsclient.Handler {
	return &printingHandler{printer: p, next: next}
}

func (p *eventPrinter) paint(style color.Style, s string) string {
	if !p.colors {
		return s
	}
	return style.Render(s)
}

func (p *eventPrinter) print(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", p.now().Format("15:04:05.000"), line)
}

// Formats one server frame for display
func (p *eventPrinter) describe(frame []byte) string {
	env, err := protocol.Decode(frame)
	if err != nil {
		return p.paint(color.New(color.FgRed), "malformed frame: "+err.Error())
	}

	switch env.Event {
	case protocol.Joined:
		if d, err := protocol.Payload[protocol.JoinedPayload](env); err == nil {
			return p.paint(color.New(color.FgGreen, color.OpBold), "joined") +
				fmt.Sprintf(" %s with %d in the room", d.RoomID, d.Count)
		}
	case protocol.RoomFull:
		if d, err := protocol.Payload[protocol.RoomFullPayload](env); err == nil {
			return p.paint(color.New(color.FgRed, color.OpBold), "room full") + " " + d.RoomID
		}
	case protocol.ActiveUserCount:
		if d, err := protocol.Payload[protocol.ActiveUserCountPayload](env); err == nil {
			return p.paint(color.New(color.FgCyan), "occupancy") + fmt.Sprintf(" %d", d.Count)
		}
	case protocol.ModelPositionUpdated:
		if d, err := protocol.Payload[protocol.PositionUpdate](env); err == nil {
			return p.paint(color.New(color.FgYellow), "move") +
				fmt.Sprintf(" %s -> (%.3f, %.3f)", d.ModelID, d.Position.X, d.Position.Y)
		}
	}
	return p.paint(color.New(color.FgMagenta), string(env.Event)) + " " + string(env.Data)
}

type printingHandler struct {
	printer *eventPrinter
	next    wsclient.Handler
}

func (h *printingHandler) HandleFrame(frame []byte) error {
	h.printer.print(h.printer.describe(frame))
	return h.next.HandleFrame(frame)
}

func (h *printingHandler) OnDisconnected() {
	h.printer.print(h.printer.paint(color.New(color.FgRed), "disconnected"))
	h.next.OnDisconnected()
}
