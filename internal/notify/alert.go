package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Event names accepted in notify.events.
const (
	EventPositionOpened = "position_opened"
	EventPositionSold   = "position_sold"
	EventPositionClosed = "position_closed"
	EventTakeProfit     = "take_profit"
	EventStopLoss       = "stop_loss"
	EventTradeFailed    = "trade_failed"
	EventUnresolved     = "trade_unresolved"
)

// Alert is a formatted notification.
type Alert struct {
	Event   string
	Title   string
	Message string
}

// FormatPositionEvent renders a position event. Amounts are shown in SOL.
func FormatPositionEvent(evt domain.PositionEvent) Alert {
	token := shortMint(evt.Asset)
	var b strings.Builder

	switch evt.Type {
	case domain.PositionEventOpened:
		fmt.Fprintf(&b, "Bought %d units of %s for %s SOL", evt.Quantity, token, domain.LamportsToSOL(evt.Capital))
		writeTx(&b, evt.Signature)
		return Alert{Event: EventPositionOpened, Title: "Position opened", Message: b.String()}

	case domain.PositionEventSold:
		fmt.Fprintf(&b, "Sold part of %s, P/L %s SOL, %d units left",
			token, domain.SignedLamportsToSOL(evt.Profit), evt.Quantity)
		writeReason(&b, evt.Reason)
		writeTx(&b, evt.Signature)
		return Alert{Event: EventPositionSold, Title: "Position reduced", Message: b.String()}

	case domain.PositionEventClosed:
		a := Alert{Event: EventPositionClosed, Title: "Position closed"}
		switch domain.ExitReason(evt.Reason) {
		case domain.ExitReasonTakeProfit:
			a.Event, a.Title = EventTakeProfit, "Take profit hit"
		case domain.ExitReasonStopLoss:
			a.Event, a.Title = EventStopLoss, "Stop loss hit"
		}
		fmt.Fprintf(&b, "Closed %s, P/L %s SOL", token, domain.SignedLamportsToSOL(evt.Profit))
		writeReason(&b, evt.Reason)
		writeTx(&b, evt.Signature)
		a.Message = b.String()
		return a

	case domain.PositionEventUnresolved:
		fmt.Fprintf(&b, "%s left %s, outcome unknown", token, evt.Status)
		if evt.Error != "" {
			fmt.Fprintf(&b, ": %s", evt.Error)
		}
		writeTx(&b, evt.Signature)
		return Alert{Event: EventUnresolved, Title: "Trade outcome unknown", Message: b.String()}

	default:
		fmt.Fprintf(&b, "Trade on %s failed", token)
		if evt.Error != "" {
			fmt.Fprintf(&b, ": %s", evt.Error)
		}
		return Alert{Event: EventTradeFailed, Title: "Trade failed", Message: b.String()}
	}
}

func writeReason(b *strings.Builder, reason string) {
	if reason != "" {
		fmt.Fprintf(b, " (%s)", strings.ReplaceAll(reason, "_", " "))
	}
}

func writeTx(b *strings.Builder, sig string) {
	if sig != "" {
		fmt.Fprintf(b, "\nhttps://solscan.io/tx/%s", sig)
	}
}

func shortMint(mint string) string {
	if len(mint) <= 10 {
		return mint
	}
	return mint[:4] + "…" + mint[len(mint)-4:]
}
